package podcast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/monitor"
)

// fakeStudio records calls and writes a downloaded file on request.
type fakeStudio struct {
	uploads     []string
	urls        []string
	downloads   []string
	uploadErr   error
	downloadErr error
}

func (f *fakeStudio) UploadSource(_ context.Context, _ string, path string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeStudio) AddSourceURL(_ context.Context, _ string, u string) error {
	f.urls = append(f.urls, u)
	return nil
}

func (f *fakeStudio) DownloadAudio(_ context.Context, _ string, artifactID, dir string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	f.downloads = append(f.downloads, artifactID)
	path := filepath.Join(dir, "Audio Overview.mp3")
	return path, os.WriteFile(path, mp3Bytes(2048), 0o644)
}

// fakeGenerator completes every job with a fixed outcome.
type fakeGenerator struct {
	outcome   jobs.Outcome
	submitted []jobs.Descriptor
}

func (g *fakeGenerator) Submit(_ context.Context, d jobs.Descriptor) (jobs.Outcome, error) {
	g.submitted = append(g.submitted, d)
	out := g.outcome
	out.Tag = d.Tag
	out.Kind = d.Kind
	return out, nil
}

func completed(title string) jobs.Outcome {
	return jobs.Outcome{
		State:    monitor.Completed,
		Metadata: &extract.Metadata{Kind: "audio", ArtifactID: "aud-7", Title: title, MediaDuration: "12:40"},
	}
}

func TestPipeline_Create(t *testing.T) {
	studio := &fakeStudio{}
	gen := &fakeGenerator{outcome: completed("Cells and Membranes")}
	lib := newLibrary(t)

	var recorded []string
	p := NewPipeline(studio, gen, lib,
		WithPreparer(func(path string) (string, error) { return path + ".txt", nil }),
		WithUploadHook(func(path string) error {
			recorded = append(recorded, path)
			return nil
		}),
		WithTempDir(t.TempDir()),
	)

	res, err := p.Create(context.Background(), Request{
		NotebookID: "nb1",
		Files:      []string{"paper.html"},
		URLs:       []string{"https://example.com/post"},
		Params:     jobs.AudioParams{Format: jobs.AudioBrief},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"paper.html.txt"}, studio.uploads)
	assert.Equal(t, []string{"paper.html"}, recorded)
	assert.Equal(t, []string{"https://example.com/post"}, studio.urls)
	require.Len(t, gen.submitted, 1)
	assert.Equal(t, jobs.KindAudio, gen.submitted[0].Kind)
	assert.Equal(t, []string{"aud-7"}, studio.downloads)

	require.NotNil(t, res.Podcast)
	assert.Equal(t, monitor.Completed, res.Outcome.State)
	assert.Equal(t, "Cells_and_Membranes_20250314_092653.mp3", res.Podcast.Filename)
	md := res.Podcast.Metadata
	assert.Equal(t, "nb1", md.NotebookID)
	assert.Equal(t, "aud-7", md.ArtifactID)
	assert.Equal(t, "12:40", md.Duration)
	assert.Equal(t, map[string]string{"format": jobs.AudioBrief}, md.Settings)
	assert.Equal(t, []string{"paper.html", "https://example.com/post"}, md.Sources)
}

func TestPipeline_TitleChoice(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		artifact  string
		want      string
	}{
		{name: "requested wins", requested: "My Show", artifact: "Studio Title", want: "My_Show_"},
		{name: "artifact title", artifact: "Studio Title", want: "Studio_Title_"},
		{name: "unknown title", artifact: extract.Unknown, want: "Generated_Podcast_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&fakeStudio{}, &fakeGenerator{outcome: completed(tt.artifact)}, newLibrary(t), WithTempDir(t.TempDir()))
			res, err := p.Create(context.Background(), Request{NotebookID: "nb1", Title: tt.requested})
			require.NoError(t, err)
			assert.Equal(t, tt.want+"20250314_092653.mp3", res.Podcast.Filename)
		})
	}
}

func TestPipeline_GenerationNotCompleted(t *testing.T) {
	studio := &fakeStudio{}
	gen := &fakeGenerator{outcome: jobs.Outcome{State: monitor.Failed, Err: jobs.ErrQuotaExceeded}}
	p := NewPipeline(studio, gen, newLibrary(t))

	res, err := p.Create(context.Background(), Request{NotebookID: "nb1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "failed")
	require.NotNil(t, res)
	assert.Nil(t, res.Podcast)
	assert.Empty(t, studio.downloads)
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	studio := &fakeStudio{uploadErr: errors.New("upload dialog missing")}
	gen := &fakeGenerator{outcome: completed("x")}
	p := NewPipeline(studio, gen, newLibrary(t))

	_, err := p.Create(context.Background(), Request{NotebookID: "nb1", Files: []string{"a.pdf"}})
	assert.ErrorContains(t, err, "failed to upload a.pdf")
	assert.Empty(t, gen.submitted)

	_, err = p.Create(context.Background(), Request{})
	assert.ErrorContains(t, err, "notebook id is required")
}

func TestPipeline_Download(t *testing.T) {
	lib := newLibrary(t)
	temp := t.TempDir()
	p := NewPipeline(&fakeStudio{}, &fakeGenerator{}, lib, WithTempDir(temp))

	pod, err := p.Download(context.Background(), "nb2", Metadata{ArtifactID: "aud-9"})
	require.NoError(t, err)
	assert.Equal(t, "Generated_Podcast_20250314_092653.mp3", pod.Filename)
	assert.Equal(t, "nb2", pod.Metadata.NotebookID)

	entries, err := os.ReadDir(temp)
	require.NoError(t, err)
	assert.Empty(t, entries, "the download directory is removed")

	_, err = p.Download(context.Background(), "nb2", Metadata{})
	assert.ErrorContains(t, err, "artifact id is required")

	failing := NewPipeline(&fakeStudio{downloadErr: errors.New("no download button")}, &fakeGenerator{}, lib)
	_, err = failing.Download(context.Background(), "nb2", Metadata{ArtifactID: "aud-9"})
	assert.ErrorContains(t, err, "no download button")
}
