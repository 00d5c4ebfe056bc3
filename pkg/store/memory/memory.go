// Package memory implements store.Store in memory. Data is lost on restart.
// Useful for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"payscope/pkg/errs"
	"payscope/pkg/store"
)

// Store keeps all records in maps guarded by one mutex.
type Store struct {
	sessions map[string]store.SessionRecord
	files    map[string]store.FileRecord
	jobs     map[string]store.JobRecord
	mu       sync.Mutex
}

// New creates an in-memory record store.
func New() *Store {
	return &Store{
		sessions: make(map[string]store.SessionRecord),
		files:    make(map[string]store.FileRecord),
		jobs:     make(map[string]store.JobRecord),
	}
}

func (s *Store) PutSession(ctx context.Context, rec *store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = *rec
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "store", "session %q not found", id)
	}
	return &rec, nil
}

func (s *Store) PutFile(ctx context.Context, rec *store.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[rec.ID] = *rec
	return nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*store.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "store", "file %q not found", id)
	}
	return &rec, nil
}

func (s *Store) GetJob(ctx context.Context, fileID string) (*store.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[fileID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "store", "job %q not found", fileID)
	}
	return &rec, nil
}

// UpdateJob runs fn under the store mutex, so the read-modify-write is
// atomic with respect to other UpdateJob calls.
func (s *Store) UpdateJob(ctx context.Context, fileID string, fn func(cur *store.JobRecord) (*store.JobRecord, error)) (*store.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *store.JobRecord
	if rec, ok := s.jobs[fileID]; ok {
		copied := rec
		cur = &copied
	}

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// fn declined the update; leave the record untouched
		return cur, nil
	}
	s.jobs[fileID] = *next
	copied := *next
	return &copied, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]*store.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		copied := rec
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Store) Close() error {
	return nil
}
