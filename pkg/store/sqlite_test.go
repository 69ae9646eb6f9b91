package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_AppendAndList(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "artifacts.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	rec := ArtifactRecord{
		Kind:          "audio",
		Config:        map[string]string{"format": "debate", "length": "long"},
		Duration:      3*time.Minute + 250*time.Millisecond,
		ArtifactID:    "aud_1",
		Title:         "Risk review",
		MediaDuration: "14:32",
		Thumbnail:     "unknown",
		ItemCount:     "unknown",
		Tags:          []string{"Debate"},
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Tag:           "tag-1",
	}
	require.NoError(t, s.Append(ctx, "nb1", rec))

	other := testRecord("q1")
	other.CreatedAt = rec.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Append(ctx, "nb2", other))

	got, err := s.Artifacts(ctx, "nb1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aud_1", got[0].ArtifactID)
	assert.Equal(t, rec.Config, got[0].Config)
	assert.Equal(t, rec.Tags, got[0].Tags)
	assert.Equal(t, 3*time.Minute+250*time.Millisecond, got[0].Duration)
	assert.True(t, rec.CreatedAt.Equal(got[0].CreatedAt))

	all, err := s.Artifacts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "q1", all[1].ArtifactID)
}

func TestSQLiteStore_AppendReplacesSameArtifact(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	rec := testRecord("q1")
	require.NoError(t, s.Append(ctx, "nb", rec))
	rec.Title = "Renamed"
	require.NoError(t, s.Append(ctx, "nb", rec))

	got, err := s.Artifacts(ctx, "nb")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Renamed", got[0].Title)
}

func TestSQLiteStore_RejectsInvalid(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	err = s.Append(context.Background(), "nb", ArtifactRecord{ArtifactID: "x"})
	assert.ErrorContains(t, err, "kind")

	_, err = OpenSQLite("  ")
	assert.ErrorContains(t, err, "cannot be empty")
}
