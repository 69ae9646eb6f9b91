package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/deepdiver/pkg/logging"
)

const (
	currentFile   = "current_session.json"
	sessionPrefix = "session_"
	eventsSuffix  = ".events.jsonl"
)

// Event is one line of a session's append-only log.
type Event struct {
	Time    time.Time       `json:"ts"`
	Session string          `json:"session_id"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StartOptions describe a new session.
type StartOptions struct {
	Assistant   string
	Agents      []string
	IssueNumber int
}

// Tracker keeps the current session in a JSON snapshot and records every
// change in a per-session JSON-lines event log. Ended sessions are archived
// as session_<id>.json. It is safe for concurrent use.
type Tracker struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the tracker's logger.
func WithTrackerLogger(l *logging.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithNow replaces the tracker's time source.
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker opens the tracker rooted at dir and loads the current session
// if one exists.
func NewTracker(dir string, opts ...TrackerOption) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	t := &Tracker{dir: dir, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read current session: %w", err)
	default:
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode current session: %w", err)
		}
		t.current = &s
	}
	return t, nil
}

// Dir returns the tracker's root directory.
func (t *Tracker) Dir() string {
	return t.dir
}

// Start begins a new session. An active session is ended first.
func (t *Tracker) Start(opts StartOptions) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		if err := t.endLocked(); err != nil {
			return nil, err
		}
	}

	assistant := opts.Assistant
	if assistant == "" {
		assistant = "claude"
	}
	s := &Session{
		ID:          uuid.NewString(),
		Assistant:   assistant,
		Agents:      append([]string(nil), opts.Agents...),
		IssueNumber: opts.IssueNumber,
		Status:      StatusActive,
		CreatedAt:   t.now(),
		Notebooks:   []Notebook{},
		Documents:   []Document{},
		Notes:       []Note{},
	}
	t.current = s
	if err := t.commit("session_started", opts, nil); err != nil {
		t.current = nil
		return nil, err
	}
	t.logger.Infof("session started: %s", s.ID)
	return cloneSession(s), nil
}

// Current returns a copy of the active session.
func (t *Tracker) Current() (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, ErrNoActiveSession
	}
	return cloneSession(t.current), nil
}

// WriteNote appends a note to the active session.
func (t *Tracker) WriteNote(message, noteType string) error {
	if noteType == "" {
		noteType = "note"
	}
	return t.mutate("note_written", func(s *Session) (any, error) {
		n := Note{Timestamp: t.now(), Type: noteType, Message: message}
		s.Notes = append(s.Notes, n)
		return n, nil
	})
}

// AddDocument records a processed source document.
func (t *Tracker) AddDocument(doc Document) error {
	return t.mutate("document_added", func(s *Session) (any, error) {
		if doc.Timestamp.IsZero() {
			doc.Timestamp = t.now()
		}
		s.Documents = append(s.Documents, doc)
		if doc.Notebook != "" {
			if nb := s.notebook(doc.Notebook); nb != nil {
				nb.Sources = append(nb.Sources, filepath.Base(doc.Path))
			}
		}
		return doc, nil
	})
}

// AddNotebook registers a notebook. The first notebook, or one marked
// active, becomes the active notebook.
func (t *Tracker) AddNotebook(nb Notebook) error {
	return t.mutate("notebook_added", func(s *Session) (any, error) {
		if nb.ID == "" {
			return nil, fmt.Errorf("notebook id is required")
		}
		if s.notebook(nb.ID) != nil {
			return nil, fmt.Errorf("notebook %s already in session", nb.ID)
		}
		if nb.CreatedAt.IsZero() {
			nb.CreatedAt = t.now()
		}
		if nb.Title == "" {
			nb.Title = "Untitled Notebook"
		}
		s.Notebooks = append(s.Notebooks, nb)
		if s.ActiveNotebookID == "" || nb.Active {
			setActive(s, nb.ID)
		}
		return nb, nil
	})
}

// SetActiveNotebook marks id as the session's active notebook.
func (t *Tracker) SetActiveNotebook(id string) error {
	return t.mutate("notebook_activated", func(s *Session) (any, error) {
		if s.notebook(id) == nil {
			return nil, fmt.Errorf("notebook %s: %w", id, ErrNotFound)
		}
		setActive(s, id)
		return map[string]string{"id": id}, nil
	})
}

// UpdateNotebook renames a notebook or changes its URL. Empty values are
// left unchanged.
func (t *Tracker) UpdateNotebook(id, title, url string) error {
	return t.mutate("notebook_updated", func(s *Session) (any, error) {
		nb := s.notebook(id)
		if nb == nil {
			return nil, fmt.Errorf("notebook %s: %w", id, ErrNotFound)
		}
		if title != "" {
			nb.Title = title
		}
		if url != "" {
			nb.URL = url
		}
		nb.UpdatedAt = t.now()
		return map[string]string{"id": id, "title": title, "url": url}, nil
	})
}

// ActiveNotebook returns the active notebook of the current session.
func (t *Tracker) ActiveNotebook() (*Notebook, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, ErrNoActiveSession
	}
	nb := t.current.notebook(t.current.ActiveNotebookID)
	if nb == nil {
		return nil, fmt.Errorf("active notebook: %w", ErrNotFound)
	}
	out := *nb
	return &out, nil
}

// Notebooks lists the notebooks of the current session.
func (t *Tracker) Notebooks() ([]Notebook, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, ErrNoActiveSession
	}
	return cloneSession(t.current).Notebooks, nil
}

// Append implements Appender. Records for a notebook unknown to the session
// register the notebook on the fly.
func (t *Tracker) Append(_ context.Context, notebookID string, rec ArtifactRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return t.mutate("artifact_appended", func(s *Session) (any, error) {
		nb := s.notebook(notebookID)
		if nb == nil {
			s.Notebooks = append(s.Notebooks, Notebook{ID: notebookID, Title: "Untitled Notebook", CreatedAt: t.now()})
			nb = &s.Notebooks[len(s.Notebooks)-1]
			if s.ActiveNotebookID == "" {
				setActive(s, notebookID)
			}
		}
		nb.Artifacts = append(nb.Artifacts, rec)
		nb.UpdatedAt = t.now()
		return struct {
			Notebook string         `json:"notebook_id"`
			Record   ArtifactRecord `json:"record"`
		}{notebookID, rec}, nil
	})
}

// End archives the active session.
func (t *Tracker) End() (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, ErrNoActiveSession
	}
	ended := cloneSession(t.current)
	if err := t.endLocked(); err != nil {
		return nil, err
	}
	now := t.now()
	ended.Status = StatusEnded
	ended.EndedAt = &now
	return ended, nil
}

func (t *Tracker) endLocked() error {
	now := t.now()
	t.current.Status = StatusEnded
	t.current.EndedAt = &now
	reopen := func() {
		t.current.Status = StatusActive
		t.current.EndedAt = nil
	}

	archive := t.archivePath(t.current.ID)
	if err := writeJSONAtomic(archive, t.current); err != nil {
		reopen()
		return err
	}
	if err := t.appendEvent("session_ended", nil); err != nil {
		_ = os.Remove(archive)
		reopen()
		return err
	}
	if err := os.Remove(filepath.Join(t.dir, currentFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove current session: %w", err)
	}
	t.logger.Infof("session ended: %s", t.current.ID)
	t.current = nil
	return nil
}

// List returns every archived session plus the active one, newest first.
func (t *Tracker) List() ([]Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions, err := t.archived()
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(sessions)+1)
	if t.current != nil {
		summaries = append(summaries, t.current.Summary())
	}
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Load reads one session, archived or active.
func (t *Tracker) Load(id string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID == id {
		return cloneSession(t.current), nil
	}
	s, err := readSession(t.archivePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// Events returns the event log of a session.
func (t *Tracker) Events(id string) ([]Event, error) {
	data, err := os.ReadFile(t.eventsPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	var events []Event
	for i, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Cleanup removes archived sessions created before maxAge ago, then the
// oldest ones beyond keep (when keep > 0). The active session is never
// removed. It returns how many sessions were deleted.
func (t *Tracker) Cleanup(maxAge time.Duration, keep int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions, err := t.archived()
	if err != nil {
		return 0, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	cutoff := t.now().Add(-maxAge)
	deleted := 0
	for i, s := range sessions {
		tooOld := maxAge > 0 && s.CreatedAt.Before(cutoff)
		overLimit := keep > 0 && i >= keep
		if !tooOld && !overLimit {
			continue
		}
		if err := os.Remove(t.archivePath(s.ID)); err != nil {
			return deleted, fmt.Errorf("failed to remove session %s: %w", s.ID, err)
		}
		_ = os.Remove(t.eventsPath(s.ID))
		deleted++
	}
	t.logger.Infof("cleaned up %d old sessions", deleted)
	return deleted, nil
}

// mutate applies fn to the active session and commits the result. On error
// the session is restored.
func (t *Tracker) mutate(eventType string, fn func(*Session) (any, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ErrNoActiveSession
	}
	backup := cloneSession(t.current)
	data, err := fn(t.current)
	if err != nil {
		t.current = backup
		return err
	}
	if err := t.commit(eventType, data, backup); err != nil {
		t.current = backup
		return err
	}
	return nil
}

// commit rewrites the snapshot and then logs the event, so the log only
// holds changes that reached disk. If the event cannot be logged the
// snapshot is put back to previous, or removed when there was none.
// Callers hold mu.
func (t *Tracker) commit(eventType string, data any, previous *Session) error {
	path := filepath.Join(t.dir, currentFile)
	if err := writeJSONAtomic(path, t.current); err != nil {
		return err
	}
	if err := t.appendEvent(eventType, data); err != nil {
		var restoreErr error
		if previous == nil {
			restoreErr = os.Remove(path)
		} else {
			restoreErr = writeJSONAtomic(path, previous)
		}
		if restoreErr != nil {
			t.logger.Warnf("failed to restore session snapshot: %v", restoreErr)
		}
		return err
	}
	return nil
}

func (t *Tracker) appendEvent(eventType string, data any) error {
	ev := Event{Time: t.now(), Session: t.current.ID, Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", eventType, err)
		}
		ev.Data = raw
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	f, err := os.OpenFile(t.eventsPath(t.current.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (t *Tracker) archived() ([]*Session, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var sessions []*Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, sessionPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		s, err := readSession(filepath.Join(t.dir, name))
		if err != nil {
			t.logger.Warnf("skipping unreadable session file %s: %v", name, err)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (t *Tracker) archivePath(id string) string {
	return filepath.Join(t.dir, sessionPrefix+id+".json")
}

func (t *Tracker) eventsPath(id string) string {
	return filepath.Join(t.dir, sessionPrefix+id+eventsSuffix)
}

func setActive(s *Session, id string) {
	s.ActiveNotebookID = id
	for i := range s.Notebooks {
		s.Notebooks[i].Active = s.Notebooks[i].ID == id
	}
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// writeJSONAtomic writes v through a temporary file and a rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// cloneSession deep-copies s through JSON so callers never share slices
// with the tracker.
func cloneSession(s *Session) *Session {
	data, err := json.Marshal(s)
	if err != nil {
		out := *s
		return &out
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *s
		return &cp
	}
	return &out
}
