package browser

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Chrome started with --remote-debugging-port.
func TestPlaywrightDialer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	url := os.Getenv(EnvCDPURL)
	if url == "" {
		url = DefaultEndpoint
	}
	if _, err := Probe(context.Background(), url, time.Second); err != nil {
		t.Skipf("no CDP endpoint at %s: %v", url, err)
	}

	m := NewManager(NewPlaywrightDialer(false), Candidates(url, "", "", ""))
	defer m.Close()

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Navigate("data:text/html,<button id=go>Go</button><button disabled>No</button>", 10*time.Second))

	els, err := s.Page().Find("button")
	require.NoError(t, err)
	require.Len(t, els, 2)

	enabled, err := els[0].IsEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)
	enabled, err = els[1].IsEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	obscured, err := els[0].IsObscured()
	require.NoError(t, err)
	assert.False(t, obscured)

	require.NoError(t, els[0].SetAttribute("data-seen", "1"))
	v, err := els[0].Attribute("data-seen")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500.0, *millis(1500*time.Millisecond))
	assert.Equal(t, float64(defaultActionTimeout.Milliseconds()), *millis(0))
}
