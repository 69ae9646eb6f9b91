package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/config"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/logging"
)

func TestAudioParams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Generation.Defaults["audio"] = map[string]string{"format": jobs.AudioDebate, "length": jobs.LengthLong}
	a := &app{cfg: &config.Resolved{Config: cfg}, logger: logging.Nop()}

	p, err := audioParams(a, "", jobs.LengthShort, "", "Focus on methods")
	require.NoError(t, err)
	assert.Equal(t, jobs.AudioParams{Format: jobs.AudioDebate, Length: jobs.LengthShort, Instructions: "Focus on methods"}, p)

	_, err = audioParams(a, "interview", "", "", "")
	assert.Error(t, err)
}

func TestLibraryFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Podcasts.Dir = t.TempDir()
	cfg.Podcasts.NamingPattern = "{date}_{title}"
	a := &app{cfg: &config.Resolved{Config: cfg}, logger: logging.Nop()}

	lib, err := a.library()
	require.NoError(t, err)
	assert.Equal(t, cfg.Podcasts.Dir, lib.Dir())
	assert.Contains(t, lib.Filename("Weekly Recap", timeOf(t, "2025-03-14"), ""), "20250314_Weekly_Recap.mp3")
}

func timeOf(t *testing.T, day string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	return ts
}
