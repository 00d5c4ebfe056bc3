package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"payscope/pkg/errs"
	"payscope/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))

	rec := &store.SessionRecord{ID: "s1", FileName: "a.csv", TotalSize: 12, ChunkSize: 5, Status: store.SessionUploading}
	require.NoError(t, s.PutSession(ctx, rec))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "a.csv", got.FileName)
	require.Equal(t, store.SessionUploading, got.Status)
}

func TestFileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutFile(ctx, &store.FileRecord{ID: "abc", Name: "a.csv", Size: 10, SHA256: "abc"}))
	got, err := s.GetFile(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, int64(10), got.Size)

	_, err = s.GetFile(ctx, "missing")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestUpdateJob_Transitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.UpdateJob(ctx, "f1", func(cur *store.JobRecord) (*store.JobRecord, error) {
		require.Nil(t, cur)
		return &store.JobRecord{FileID: "f1", Status: store.JobQueued}, nil
	})
	require.NoError(t, err)
	require.Equal(t, store.JobQueued, rec.Status)

	rec, err = s.UpdateJob(ctx, "f1", func(cur *store.JobRecord) (*store.JobRecord, error) {
		require.NotNil(t, cur)
		next := *cur
		next.Status = store.JobRunning
		return &next, nil
	})
	require.NoError(t, err)
	require.Equal(t, store.JobRunning, rec.Status)

	got, err := s.GetJob(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, store.JobRunning, got.Status)
}

func TestUpdateJob_ErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateJob(ctx, "f1", func(cur *store.JobRecord) (*store.JobRecord, error) {
		return &store.JobRecord{FileID: "f1", Status: store.JobQueued}, nil
	})
	require.NoError(t, err)

	_, err = s.UpdateJob(ctx, "f1", func(cur *store.JobRecord) (*store.JobRecord, error) {
		return nil, errs.New(errs.KindConflict, "store", "already claimed")
	})
	require.Equal(t, errs.KindConflict, errs.KindOf(err))

	got, err := s.GetJob(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, store.JobQueued, got.Status)
}

func TestListSessions_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		rec := &store.SessionRecord{ID: id}
		require.NoError(t, s.PutSession(ctx, rec))
		got, err := s.GetSession(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, got.ID)
	}

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
}

func TestKeyCollisionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, &store.SessionRecord{ID: "real"}))

	// A different ID that happens to miss entirely stays NotFound even
	// though the keyspace is hashed.
	_, err := s.GetSession(ctx, "other")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
