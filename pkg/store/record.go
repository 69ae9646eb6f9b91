// Package store persists sessions, notebooks and generated artifact records.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoActiveSession is returned by operations that need a started session.
	ErrNoActiveSession = errors.New("store: no active session")

	// ErrNotFound is returned when a session or notebook does not exist.
	ErrNotFound = errors.New("store: not found")
)

// ArtifactRecord is the persisted result of one completed generation job.
type ArtifactRecord struct {
	Kind          string            `json:"kind"`
	Config        map[string]string `json:"config,omitempty"`
	Duration      time.Duration     `json:"generation_duration"`
	ArtifactID    string            `json:"artifact_id"`
	Title         string            `json:"title"`
	MediaDuration string            `json:"media_duration"`
	Thumbnail     string            `json:"thumbnail"`
	ItemCount     string            `json:"item_count"`
	Tags          []string          `json:"tags,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Tag           string            `json:"correlation_tag"`
}

// Validate checks the fields every record must carry.
func (r ArtifactRecord) Validate() error {
	var missing []string
	if r.Kind == "" {
		missing = append(missing, "kind")
	}
	if r.ArtifactID == "" {
		missing = append(missing, "artifact_id")
	}
	if r.CreatedAt.IsZero() {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("artifact record missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Appender receives completed artifact records. Ownership of rec passes to
// the appender.
type Appender interface {
	Append(ctx context.Context, notebookID string, rec ArtifactRecord) error
}

// AppenderFunc adapts a function to Appender.
type AppenderFunc func(ctx context.Context, notebookID string, rec ArtifactRecord) error

func (f AppenderFunc) Append(ctx context.Context, notebookID string, rec ArtifactRecord) error {
	return f(ctx, notebookID, rec)
}

// Tee appends to every appender in order and stops at the first error.
func Tee(appenders ...Appender) Appender {
	return AppenderFunc(func(ctx context.Context, notebookID string, rec ArtifactRecord) error {
		for _, a := range appenders {
			if err := a.Append(ctx, notebookID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Notebook is a NotebookLM notebook known to a session.
type Notebook struct {
	ID        string           `json:"id"`
	URL       string           `json:"url"`
	Title     string           `json:"title"`
	Active    bool             `json:"active"`
	Sources   []string         `json:"sources,omitempty"`
	Artifacts []ArtifactRecord `json:"artifacts,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
}

// Note is a free-form message written into a session.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

// Document is a source file processed during a session.
type Document struct {
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	Pages     int       `json:"pages,omitempty"`
	Notebook  string    `json:"notebook_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStatus values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is one working session of the tool.
type Session struct {
	ID               string     `json:"session_id"`
	Assistant        string     `json:"ai_assistant"`
	Agents           []string   `json:"agents,omitempty"`
	IssueNumber      int        `json:"issue_number,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ActiveNotebookID string     `json:"active_notebook_id,omitempty"`
	Notebooks        []Notebook `json:"notebooks"`
	Documents        []Document `json:"documents_processed"`
	Notes            []Note     `json:"notes"`
}

// Summary condenses a session for listings.
type Summary struct {
	ID               string    `json:"session_id"`
	Assistant        string    `json:"ai_assistant"`
	IssueNumber      int       `json:"issue_number,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	ActiveNotebookID string    `json:"active_notebook_id,omitempty"`
	Notebooks        int       `json:"notebooks_count"`
	Artifacts        int       `json:"artifacts_count"`
	Documents        int       `json:"documents_count"`
	Notes            int       `json:"notes_count"`
}

// Summary returns the listing view of s.
func (s *Session) Summary() Summary {
	artifacts := 0
	for _, nb := range s.Notebooks {
		artifacts += len(nb.Artifacts)
	}
	return Summary{
		ID:               s.ID,
		Assistant:        s.Assistant,
		IssueNumber:      s.IssueNumber,
		Status:           s.Status,
		CreatedAt:        s.CreatedAt,
		ActiveNotebookID: s.ActiveNotebookID,
		Notebooks:        len(s.Notebooks),
		Artifacts:        artifacts,
		Documents:        len(s.Documents),
		Notes:            len(s.Notes),
	}
}

func (s *Session) notebook(id string) *Notebook {
	for i := range s.Notebooks {
		if s.Notebooks[i].ID == id {
			return &s.Notebooks[i]
		}
	}
	return nil
}
