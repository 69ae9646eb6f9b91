package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfiles = map[string]Profile{
	"audio": {
		Title:     []string{".artifact-title"},
		Duration:  []string{".artifact-duration"},
		Thumbnail: []string{"img.artifact-thumbnail"},
		Tags:      []string{".artifact-chip"},
	},
	"video": {
		Title:        []string{".artifact-title", "h3"},
		Duration:     []string{".artifact-duration"},
		ScanDuration: true,
	},
	"quiz": {
		Title:         []string{".artifact-title"},
		ItemCount:     []string{".artifact-details"},
		Tags:          []string{".artifact-chip"},
		ScanItemCount: true,
	},
}

func newTestExtractor() *Extractor {
	return New(testProfiles, Profile{Title: []string{".artifact-title", "h3"}})
}

func TestExtract_Audio(t *testing.T) {
	snapshot := `
<div class="artifact-tile" data-artifact-id="aud_123">
  <img class="artifact-thumbnail" src="https://lh3.example.com/thumb.png">
  <span class="artifact-title">  Deep Dive:
     Risk Review </span>
  <span class="artifact-duration">14:32</span>
  <span class="artifact-chip">Debate</span>
  <span class="artifact-chip">Long</span>
  <span class="artifact-chip">Debate</span>
</div>`

	md, err := newTestExtractor().Extract("audio", snapshot)
	require.NoError(t, err)

	assert.Equal(t, "audio", md.Kind)
	assert.Equal(t, "aud_123", md.ArtifactID)
	assert.Equal(t, "Deep Dive: Risk Review", md.Title)
	assert.Equal(t, "14:32", md.MediaDuration)
	assert.Equal(t, "https://lh3.example.com/thumb.png", md.Thumbnail)
	assert.Equal(t, Unknown, md.ItemCount)
	assert.Equal(t, []string{"Debate", "Long"}, md.Tags)
}

func TestExtract_QuizCountFromDetails(t *testing.T) {
	snapshot := `
<div class="artifact-tile">
  <a href="/notebook/nb1/artifact/quiz-77?x=1">open</a>
  <span class="artifact-title">Chapter 3 Quiz</span>
  <span class="artifact-details">Quiz · 12 questions · 2 sources</span>
  <span class="artifact-chip">Hard</span>
</div>`

	md, err := newTestExtractor().Extract("quiz", snapshot)
	require.NoError(t, err)

	assert.Equal(t, "quiz-77", md.ArtifactID)
	assert.Equal(t, "12", md.ItemCount)
	assert.Equal(t, Unknown, md.MediaDuration)
	assert.Equal(t, Unknown, md.Thumbnail)
	assert.Equal(t, []string{"Hard"}, md.Tags)
}

func TestExtract_DurationFromContainerText(t *testing.T) {
	snapshot := `<div data-item-id="v9"><h3>Explainer</h3><p>Video · 1:05:09 · Ready</p></div>`

	md, err := newTestExtractor().Extract("video", snapshot)
	require.NoError(t, err)

	assert.Equal(t, "v9", md.ArtifactID)
	assert.Equal(t, "Explainer", md.Title)
	assert.Equal(t, "1:05:09", md.MediaDuration)
}

func TestExtract_TextScanIsPerKind(t *testing.T) {
	// The creation time looks like a media duration but quizzes have none.
	quiz := `<div data-artifact-id="q2"><span class="artifact-title">Recap</span><p>Created 10:42 AM · 10 questions</p></div>`

	md, err := newTestExtractor().Extract("quiz", quiz)
	require.NoError(t, err)
	assert.Equal(t, Unknown, md.MediaDuration)
	assert.Equal(t, "10", md.ItemCount)

	// Kinds on the fallback profile do not scan at all.
	report := `<div data-artifact-id="r1"><h3>Briefing</h3><p>Updated 09:15 · 4 sources</p></div>`

	md, err = newTestExtractor().Extract("report", report)
	require.NoError(t, err)
	assert.Equal(t, "Briefing", md.Title)
	assert.Equal(t, Unknown, md.MediaDuration)
	assert.Equal(t, Unknown, md.ItemCount)
	assert.Empty(t, md.Tags)
}

func TestExtract_MissingIdentifier(t *testing.T) {
	// A ready tile without an identifier must not produce partial metadata.
	snapshot := `
<div class="artifact-tile" data-status="ready">
  <span class="artifact-title">Flashcards</span>
  <span class="artifact-details">30 cards</span>
</div>`

	md, err := newTestExtractor().Extract("flashcards", snapshot)

	var extractionErr *ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, "flashcards", extractionErr.Kind)
	assert.Contains(t, err.Error(), "no artifact identifier")
	assert.Equal(t, Metadata{}, md)
}

func TestExtract_BlankIdentifierIgnored(t *testing.T) {
	snapshot := `<div data-artifact-id="  "><a href="https://notebooklm.google.com/audio/abc_DEF">x</a></div>`

	md, err := newTestExtractor().Extract("audio", snapshot)
	require.NoError(t, err)
	assert.Equal(t, "abc_DEF", md.ArtifactID)
	assert.Equal(t, Unknown, md.Title)
}
