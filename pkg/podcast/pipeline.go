package podcast

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultTitle is used when neither the caller nor the artifact names the
// podcast.
const DefaultTitle = "Generated Podcast"

// Studio is the part of the NotebookLM driver a pipeline needs.
type Studio interface {
	UploadSource(ctx context.Context, notebookID, path string) error
	AddSourceURL(ctx context.Context, notebookID, sourceURL string) error
	DownloadAudio(ctx context.Context, notebookID, artifactID, dir string) (string, error)
}

// Generator runs a job to a terminal state.
type Generator interface {
	Submit(ctx context.Context, d jobs.Descriptor) (jobs.Outcome, error)
}

// Request describes one podcast to produce.
type Request struct {
	NotebookID string
	Files      []string
	URLs       []string
	Title      string
	Params     jobs.AudioParams
}

// Result is a finished pipeline run.
type Result struct {
	Outcome jobs.Outcome
	Podcast *Podcast
}

// Pipeline uploads sources, generates an audio overview and saves the
// download into a library.
type Pipeline struct {
	studio  Studio
	gen     Generator
	lib     *Library
	logger  *logging.Logger
	prepare func(path string) (string, error)
	record  func(path string) error
	tempDir string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline's logger.
func WithPipelineLogger(l *logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithPreparer converts each file before upload and returns the path to
// upload.
func WithPreparer(fn func(path string) (string, error)) PipelineOption {
	return func(p *Pipeline) { p.prepare = fn }
}

// WithUploadHook is called with the original path of every uploaded file.
func WithUploadHook(fn func(path string) error) PipelineOption {
	return func(p *Pipeline) { p.record = fn }
}

// WithTempDir sets where downloads land before they enter the library.
// Empty means the system temp directory.
func WithTempDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.tempDir = dir }
}

// NewPipeline creates a pipeline.
func NewPipeline(studio Studio, gen Generator, lib *Library, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		studio:  studio,
		gen:     gen,
		lib:     lib,
		logger:  logging.Nop(),
		prepare: func(path string) (string, error) { return path, nil },
		record:  func(string) error { return nil },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create runs the whole pipeline for req. A generation that ends in any
// state but Completed is returned as an error together with its outcome.
func (p *Pipeline) Create(ctx context.Context, req Request) (*Result, error) {
	if req.NotebookID == "" {
		return nil, fmt.Errorf("notebook id is required")
	}
	for _, path := range req.Files {
		upload, err := p.prepare(path)
		if err != nil {
			return nil, err
		}
		if err := p.studio.UploadSource(ctx, req.NotebookID, upload); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", path, err)
		}
		if err := p.record(path); err != nil {
			return nil, err
		}
		p.logger.Infof("uploaded %s to %s", path, req.NotebookID)
	}
	for _, u := range req.URLs {
		if err := p.studio.AddSourceURL(ctx, req.NotebookID, u); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", u, err)
		}
	}

	d := jobs.NewDescriptor(req.NotebookID, req.Params)
	outcome, err := p.gen.Submit(ctx, d)
	res := &Result{Outcome: outcome}
	if err != nil {
		return res, err
	}
	if !outcome.Succeeded() {
		return res, fmt.Errorf("audio overview %s: %w", outcome.State, outcome.Err)
	}

	md := Metadata{
		Title:      titleFor(req.Title, outcome.Metadata),
		NotebookID: req.NotebookID,
		Settings:   d.Params.Settings(),
		Sources:    append(append([]string(nil), req.Files...), req.URLs...),
	}
	if outcome.Metadata != nil {
		md.ArtifactID = outcome.Metadata.ArtifactID
		md.Duration = outcome.Metadata.MediaDuration
	}
	res.Podcast, err = p.Download(ctx, req.NotebookID, md)
	return res, err
}

// Download fetches the audio artifact md.ArtifactID of a notebook and saves
// it into the library.
func (p *Pipeline) Download(ctx context.Context, notebookID string, md Metadata) (*Podcast, error) {
	if md.ArtifactID == "" {
		return nil, fmt.Errorf("artifact id is required")
	}
	if md.Title == "" {
		md.Title = DefaultTitle
	}
	md.NotebookID = notebookID

	if p.tempDir != "" {
		if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(p.tempDir, "deepdiver-audio-")
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path, err := p.studio.DownloadAudio(ctx, notebookID, md.ArtifactID, dir)
	if err != nil {
		return nil, err
	}
	return p.lib.Save(path, md)
}

func titleFor(requested string, md *extract.Metadata) string {
	if requested != "" {
		return requested
	}
	if md != nil && md.Title != "" && md.Title != extract.Unknown {
		return md.Title
	}
	return DefaultTitle
}
