package jobs

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// Descriptor is a request to generate one artifact.
type Descriptor struct {
	Kind   Kind
	Params Params

	// Sources are glob patterns over notebook source titles. An empty list
	// keeps the notebook's current source selection.
	Sources []string

	NotebookID string

	// Tag correlates the submission with the artifact tile it produces.
	Tag string
}

// NewDescriptor builds a descriptor with a fresh correlation tag.
func NewDescriptor(notebookID string, params Params, sources ...string) Descriptor {
	d := Descriptor{
		Params:     params,
		Sources:    append([]string(nil), sources...),
		NotebookID: notebookID,
		Tag:        uuid.NewString(),
	}
	if params != nil {
		d.Kind = params.Kind()
	}
	return d
}

// Validate checks the descriptor before submission.
func (d Descriptor) Validate() error {
	if d.Params == nil {
		return fmt.Errorf("job parameters are required")
	}
	if d.Kind != d.Params.Kind() {
		return fmt.Errorf("job kind %q does not match %q parameters", d.Kind, d.Params.Kind())
	}
	if d.NotebookID == "" {
		return fmt.Errorf("notebook id is required")
	}
	if d.Tag == "" {
		return fmt.Errorf("correlation tag is required")
	}
	if err := d.Params.Validate(); err != nil {
		return fmt.Errorf("%s parameters: %w", d.Kind, err)
	}
	if _, err := d.SourceMatcher(); err != nil {
		return err
	}
	return nil
}

// SourceMatcher compiles Sources into a predicate over source titles. With
// no patterns every title matches.
func (d Descriptor) SourceMatcher() (func(title string) bool, error) {
	if len(d.Sources) == 0 {
		return func(string) bool { return true }, nil
	}
	globs := make([]glob.Glob, 0, len(d.Sources))
	for _, pattern := range d.Sources {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return func(title string) bool {
		for _, g := range globs {
			if g.Match(title) {
				return true
			}
		}
		return false
	}, nil
}
