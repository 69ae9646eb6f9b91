package notebooklm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/locator/locatortest"
	"github.com/entrhq/deepdiver/pkg/logging"
	"github.com/entrhq/deepdiver/pkg/monitor"
)

const tileSelector = "artifact-library-item"

func newTestCorrelator(t *testing.T) *correlator {
	t.Helper()
	l, err := DefaultLayout()
	require.NoError(t, err)
	return newCorrelator(l, logging.Nop())
}

func tile(name, html string) *locatortest.Node {
	return locatortest.NewNode(name).WithHTML(html)
}

func TestCorrelator_Classify(t *testing.T) {
	c := newTestCorrelator(t)

	tests := []struct {
		name    string
		html    string
		want    monitor.SignalKind
		wantMsg string
	}{
		{
			name: "generating",
			html: `<artifact-library-item><mat-progress-spinner></mat-progress-spinner><span>Generating Audio Overview...</span></artifact-library-item>`,
			want: monitor.SignalNone,
		},
		{
			name: "ready",
			html: `<artifact-library-item data-artifact-id="a1"><span class="artifact-title">Deep dive</span></artifact-library-item>`,
			want: monitor.SignalReady,
		},
		{
			name:    "error element",
			html:    `<artifact-library-item><div class="artifact-error"> Generation failed. </div></artifact-library-item>`,
			want:    monitor.SignalError,
			wantMsg: "Generation failed.",
		},
		{
			name:    "error phrase",
			html:    `<artifact-library-item data-artifact-id="a1"><p>You have reached your daily limit.</p></artifact-library-item>`,
			want:    monitor.SignalError,
			wantMsg: "You have reached your daily limit.",
		},
		{
			name: "error beats progress",
			html: `<artifact-library-item data-status="error"><mat-progress-spinner></mat-progress-spinner>Oops</artifact-library-item>`,
			want: monitor.SignalError,
		},
		{
			name: "progress beats ready",
			html: `<artifact-library-item data-artifact-id="a1" data-status="generating"></artifact-library-item>`,
			want: monitor.SignalNone,
		},
		{
			name: "nothing recognizable",
			html: `<artifact-library-item><span>Audio Overview</span></artifact-library-item>`,
			want: monitor.SignalNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := c.classify(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, sig.Message)
			}
		})
	}
}

func TestCorrelator_ClaimsOldestUnseenTileFirst(t *testing.T) {
	c := newTestCorrelator(t)
	old := tile("old", `<artifact-library-item data-artifact-id="old"></artifact-library-item>`)
	page := locatortest.NewPage().On(tileSelector, old)

	c.mu.Lock()
	defer c.mu.Unlock()

	require.NoError(t, c.markSeen(page))
	seen, _ := old.Attribute(attrSeen)
	assert.Equal(t, "1", seen)

	c.expect(trackedJob{tag: "t1", kind: jobs.KindAudio, notebookID: "nb"})
	c.expect(trackedJob{tag: "t2", kind: jobs.KindAudio, notebookID: "nb"})

	// Newest tiles are listed first.
	second := tile("second", `<artifact-library-item></artifact-library-item>`)
	first := tile("first", `<artifact-library-item></artifact-library-item>`)
	page.On(tileSelector, second, first, old)

	require.NoError(t, c.claim(page, "nb"))

	tag, _ := first.Attribute(attrTag)
	assert.Equal(t, "t1", tag)
	tag, _ = second.Attribute(attrTag)
	assert.Equal(t, "t2", tag)
	tag, _ = old.Attribute(attrTag)
	assert.Empty(t, tag)
	assert.Empty(t, c.pending)

	el, found, err := c.tile(page, "t2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, second, el)

	_, claimed, ok := c.job("t1")
	assert.True(t, ok)
	assert.True(t, claimed)
}

func TestCorrelator_ClaimRespectsKind(t *testing.T) {
	c := newTestCorrelator(t)
	page := locatortest.NewPage()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expect(trackedJob{tag: "quiz", kind: jobs.KindQuiz, notebookID: "nb"})
	audio := tile("audio", `<artifact-library-item data-artifact-type="audio"></artifact-library-item>`)
	page.On(tileSelector, audio)

	require.NoError(t, c.claim(page, "nb"))
	tag, _ := audio.Attribute(attrTag)
	assert.Empty(t, tag, "an audio tile must not be claimed by a quiz job")
	require.Len(t, c.pending, 1)

	quiz := tile("quiz", `<artifact-library-item><mat-icon>quiz</mat-icon></artifact-library-item>`)
	page.On(tileSelector, quiz, audio)
	require.NoError(t, c.claim(page, "nb"))
	tag, _ = quiz.Attribute(attrTag)
	assert.Equal(t, "quiz", tag)
}

func TestCorrelator_OtherNotebookStaysPending(t *testing.T) {
	c := newTestCorrelator(t)
	fresh := tile("fresh", `<artifact-library-item></artifact-library-item>`)
	page := locatortest.NewPage().On(tileSelector, fresh)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expect(trackedJob{tag: "t1", kind: jobs.KindReport, notebookID: "elsewhere"})
	require.NoError(t, c.claim(page, "nb"))
	tag, _ := fresh.Attribute(attrTag)
	assert.Empty(t, tag)

	other, busy := c.busyWith("nb")
	assert.True(t, busy)
	assert.Equal(t, "elsewhere", other)
	_, busy = c.busyWith("elsewhere")
	assert.False(t, busy)

	c.forget("t1")
	_, busy = c.busyWith("nb")
	assert.False(t, busy)
}
