package notebooklm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/browser"
	"github.com/entrhq/deepdiver/pkg/browser/browsertest"
	"github.com/entrhq/deepdiver/pkg/extract"
)

const testBase = "https://notebooklm.test"

// newTestDriver attaches a driver to page through a fake CDP endpoint.
func newTestDriver(t *testing.T, page *browsertest.Page) *Driver {
	t.Helper()
	layout, err := DefaultLayout()
	require.NoError(t, err)

	dialer := browsertest.NewDialer().Serve(browser.DefaultEndpoint, browsertest.NewConn(page))
	m := browser.NewManager(dialer, browser.Candidates("", "", "", ""))
	t.Cleanup(func() { m.Close() })

	return NewDriver(m, layout,
		WithBaseURL(testBase+"/"),
		WithStepTimeout(300*time.Millisecond),
		WithNavigationTimeout(time.Second),
		WithBackoff(10*time.Millisecond),
	)
}

func TestDefaultLayout(t *testing.T) {
	l, err := DefaultLayout()
	require.NoError(t, err)

	assert.NotEmpty(t, l.Version)
	for _, target := range requiredTargets {
		_, err := l.Catalog.Strategy(target)
		assert.NoError(t, err, target)
	}
	assert.True(t, l.Studio.NewestFirst)
	assert.Contains(t, l.Studio.Kinds, "audio")
	assert.Contains(t, l.Profiles, "default")
}

func TestLayout_Extractor(t *testing.T) {
	l, err := DefaultLayout()
	require.NoError(t, err)

	md, err := l.Extractor().Extract("quiz", `
<artifact-library-item data-artifact-id="q-17">
  <span class="artifact-title">Cell Biology Quiz</span>
  <span class="artifact-details">12 questions</span>
  <span class="artifact-tag">Hard</span>
</artifact-library-item>`)
	require.NoError(t, err)
	assert.Equal(t, "q-17", md.ArtifactID)
	assert.Equal(t, "Cell Biology Quiz", md.Title)
	assert.Equal(t, "12", md.ItemCount)
	assert.Equal(t, []string{"Hard"}, md.Tags)
	assert.Equal(t, extract.Unknown, md.MediaDuration)

	md, err = l.Extractor().Extract("quiz", `
<artifact-library-item data-artifact-id="q-18">
  <span class="artifact-title">Recap</span>
  <span class="artifact-subtitle">Created 10:42 AM · 10 questions</span>
</artifact-library-item>`)
	require.NoError(t, err)
	assert.Equal(t, extract.Unknown, md.MediaDuration)
	assert.Equal(t, "10", md.ItemCount)

	md, err = l.Extractor().Extract("video", `
<artifact-library-item data-artifact-id="v-3">
  <span class="artifact-title">Explainer</span>
  <span class="artifact-subtitle">Video · 6:12</span>
</artifact-library-item>`)
	require.NoError(t, err)
	assert.Equal(t, "6:12", md.MediaDuration)
}

// targetsOnly strips the studio and profiles sections from the built-in
// layout.
func targetsOnly(t *testing.T) string {
	t.Helper()
	doc := string(builtinLayout)
	i := strings.Index(doc, "\nstudio:")
	require.Positive(t, i)
	return doc[:i+1]
}

func TestLoadLayout_FallsBackToBuiltinSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	override := strings.Replace(targetsOnly(t), `version: "2025.10"`, `version: "custom-1"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	l, err := LoadLayout(path)
	require.NoError(t, err)

	builtin, err := DefaultLayout()
	require.NoError(t, err)
	assert.Equal(t, "custom-1", l.Version)
	assert.Equal(t, builtin.Studio, l.Studio)
	assert.Equal(t, builtin.Profiles, l.Profiles)
}

func TestParseLayout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     func(t *testing.T) string
		base    bool
		wantErr string
	}{
		{
			name:    "studio required without base",
			doc:     targetsOnly,
			wantErr: "studio section is required",
		},
		{
			name: "invalid tile selector",
			doc: func(t *testing.T) string {
				return targetsOnly(t) + "studio:\n  ready: ['div[']\n"
			},
			wantErr: "studio.ready: invalid selector",
		},
		{
			name: "ready selectors required",
			doc: func(t *testing.T) string {
				return targetsOnly(t) + "studio:\n  generating: [.spinner]\n"
			},
			wantErr: "studio.ready needs at least one selector",
		},
		{
			name: "missing target",
			doc: func(t *testing.T) string {
				return "version: x\ntargets:\n  prompt:\n    - {name: a, kind: css, css: textarea}\n"
			},
			base:    true,
			wantErr: "unknown target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var base *Layout
			if tt.base {
				var err error
				base, err = DefaultLayout()
				require.NoError(t, err)
			}
			_, err := ParseLayout([]byte(tt.doc(t)), base)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadLayout_EmptyPathIsBuiltin(t *testing.T) {
	l, err := LoadLayout("")
	require.NoError(t, err)
	assert.Equal(t, "2025.10", l.Version)

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read layout")
}
