package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a time one minute later on every call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir(), WithNow(steppingClock()))
	require.NoError(t, err)
	return tr
}

func testRecord(id string) ArtifactRecord {
	return ArtifactRecord{
		Kind:       "quiz",
		ArtifactID: id,
		Title:      "Chapter quiz",
		ItemCount:  "12",
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Tag:        "tag-" + id,
	}
}

func TestTracker_RequiresActiveSession(t *testing.T) {
	tr := newTracker(t)

	_, err := tr.Current()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.ErrorIs(t, tr.WriteNote("hello", ""), ErrNoActiveSession)
	assert.ErrorIs(t, tr.Append(context.Background(), "nb", testRecord("a")), ErrNoActiveSession)
	_, err = tr.End()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestTracker_SessionLifecycle(t *testing.T) {
	tr := newTracker(t)

	s, err := tr.Start(StartOptions{Agents: []string{"nyro"}, IssueNumber: 42})
	require.NoError(t, err)
	assert.Equal(t, "claude", s.Assistant)
	assert.Equal(t, StatusActive, s.Status)

	require.NoError(t, tr.WriteNote("kickoff", ""))
	require.NoError(t, tr.AddNotebook(Notebook{ID: "nb1", URL: "https://notebooklm.google.com/notebook/nb1"}))
	require.NoError(t, tr.AddNotebook(Notebook{ID: "nb2"}))

	active, err := tr.ActiveNotebook()
	require.NoError(t, err)
	assert.Equal(t, "nb1", active.ID)
	assert.Equal(t, "Untitled Notebook", active.Title)

	require.NoError(t, tr.SetActiveNotebook("nb2"))
	active, err = tr.ActiveNotebook()
	require.NoError(t, err)
	assert.Equal(t, "nb2", active.ID)

	assert.ErrorIs(t, tr.SetActiveNotebook("missing"), ErrNotFound)

	require.NoError(t, tr.UpdateNotebook("nb1", "Research", ""))
	nbs, err := tr.Notebooks()
	require.NoError(t, err)
	require.Len(t, nbs, 2)
	assert.Equal(t, "Research", nbs[0].Title)
	assert.False(t, nbs[0].Active)
	assert.True(t, nbs[1].Active)

	ended, err := tr.End()
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	_, err = tr.Current()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = os.Stat(filepath.Join(tr.Dir(), currentFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	loaded, err := tr.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, loaded.Status)
	assert.Len(t, loaded.Notes, 1)
	assert.Equal(t, 42, loaded.IssueNumber)
}

func TestTracker_AppendRegistersNotebook(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Start(StartOptions{})
	require.NoError(t, err)

	require.NoError(t, tr.Append(context.Background(), "nb9", testRecord("q1")))
	require.NoError(t, tr.Append(context.Background(), "nb9", testRecord("q2")))

	nbs, err := tr.Notebooks()
	require.NoError(t, err)
	require.Len(t, nbs, 1)
	assert.Equal(t, "nb9", nbs[0].ID)
	assert.True(t, nbs[0].Active)
	require.Len(t, nbs[0].Artifacts, 2)
	assert.Equal(t, "q2", nbs[0].Artifacts[1].ArtifactID)

	cur, err := tr.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Summary().Artifacts)
}

func TestTracker_AppendRejectsIncompleteRecord(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Start(StartOptions{})
	require.NoError(t, err)

	err = tr.Append(context.Background(), "nb", ArtifactRecord{Kind: "audio"})
	assert.ErrorContains(t, err, "artifact_id")
}

func TestTracker_EventLogIsAppendOnly(t *testing.T) {
	tr := newTracker(t)
	s, err := tr.Start(StartOptions{})
	require.NoError(t, err)

	require.NoError(t, tr.WriteNote("one", "note"))
	require.NoError(t, tr.Append(context.Background(), "nb", testRecord("x")))
	_, err = tr.End()
	require.NoError(t, err)

	events, err := tr.Events(s.ID)
	require.NoError(t, err)

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.Equal(t, s.ID, ev.Session)
	}
	assert.Equal(t, []string{"session_started", "note_written", "artifact_appended", "session_ended"}, types)
}

func TestTracker_FailedMutationLeavesSessionUnchanged(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Start(StartOptions{})
	require.NoError(t, err)
	require.NoError(t, tr.AddNotebook(Notebook{ID: "nb"}))

	err = tr.AddNotebook(Notebook{ID: "nb"})
	assert.ErrorContains(t, err, "already in session")

	nbs, err := tr.Notebooks()
	require.NoError(t, err)
	assert.Len(t, nbs, 1)
}

func TestTracker_UnsavedChangeIsNotLogged(t *testing.T) {
	tr := newTracker(t)
	s, err := tr.Start(StartOptions{})
	require.NoError(t, err)

	// A directory in place of the temporary snapshot makes the write fail.
	blocker := filepath.Join(tr.Dir(), currentFile+".tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	err = tr.Append(context.Background(), "nb", testRecord("lost"))
	require.Error(t, err)

	events, err := tr.Events(s.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "session_started", events[0].Type)
	nbs, err := tr.Notebooks()
	require.NoError(t, err)
	assert.Empty(t, nbs)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, tr.Append(context.Background(), "nb", testRecord("kept")))
	events, err = tr.Events(s.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestTracker_UnloggedChangeIsNotSaved(t *testing.T) {
	tr := newTracker(t)
	s, err := tr.Start(StartOptions{})
	require.NoError(t, err)
	require.NoError(t, tr.WriteNote("first", ""))

	// A directory in place of the event log makes the append fail.
	logPath := tr.eventsPath(s.ID)
	require.NoError(t, os.Remove(logPath))
	require.NoError(t, os.Mkdir(logPath, 0o755))

	require.Error(t, tr.WriteNote("second", ""))

	reopened, err := NewTracker(tr.Dir())
	require.NoError(t, err)
	cur, err := reopened.Current()
	require.NoError(t, err)
	require.Len(t, cur.Notes, 1)
	assert.Equal(t, "first", cur.Notes[0].Message)

	_, err = tr.End()
	require.Error(t, err)
	cur, err = tr.Current()
	require.NoError(t, err, "a session that could not be ended stays active")
	assert.Equal(t, StatusActive, cur.Status)
	assert.Nil(t, cur.EndedAt)
	_, err = os.Stat(tr.archivePath(s.ID))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTracker_ReloadsCurrentSession(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(dir)
	require.NoError(t, err)
	s, err := tr.Start(StartOptions{Assistant: "gemini"})
	require.NoError(t, err)
	require.NoError(t, tr.WriteNote("persisted", ""))

	reopened, err := NewTracker(dir)
	require.NoError(t, err)
	cur, err := reopened.Current()
	require.NoError(t, err)
	assert.Equal(t, s.ID, cur.ID)
	assert.Equal(t, "gemini", cur.Assistant)
	require.Len(t, cur.Notes, 1)
	assert.Equal(t, "persisted", cur.Notes[0].Message)
}

func TestTracker_ListAndCleanup(t *testing.T) {
	tr := newTracker(t)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := tr.Start(StartOptions{})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	list, err := tr.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, StatusActive, list[0].Status)
	assert.Equal(t, ids[0], list[2].ID)

	deleted, err := tr.Cleanup(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = tr.Load(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Load(ids[1])
	assert.NoError(t, err)

	// The active session survives any cleanup.
	deleted, err = tr.Cleanup(time.Nanosecond, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	cur, err := tr.Current()
	require.NoError(t, err)
	assert.Equal(t, ids[2], cur.ID)
}

func TestTracker_ConcurrentAppends(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.Start(StartOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, tr.Append(context.Background(), "nb", testRecord(string(rune('a'+i)))))
		}(i)
	}
	wg.Wait()

	nbs, err := tr.Notebooks()
	require.NoError(t, err)
	require.Len(t, nbs, 1)
	assert.Len(t, nbs[0].Artifacts, 10)
}

func TestTee(t *testing.T) {
	var calls []string
	a := AppenderFunc(func(context.Context, string, ArtifactRecord) error {
		calls = append(calls, "a")
		return nil
	})
	failing := AppenderFunc(func(context.Context, string, ArtifactRecord) error {
		calls = append(calls, "fail")
		return errors.New("disk full")
	})
	c := AppenderFunc(func(context.Context, string, ArtifactRecord) error {
		calls = append(calls, "c")
		return nil
	})

	err := Tee(a, failing, c).Append(context.Background(), "nb", testRecord("x"))
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, []string{"a", "fail"}, calls)
}
