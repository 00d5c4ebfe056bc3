// Package store persists the service's metadata records: upload sessions,
// assembled files, and analysis jobs. The transaction data itself never
// passes through here; it lives on disk and is streamed by the engine.
package store

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	SessionUploading SessionStatus = "uploading"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionRecord tracks one chunked file transfer.
type SessionRecord struct {
	ID            string        `json:"id"`
	FileName      string        `json:"file_name"`
	TotalSize     int64         `json:"total_size"`
	ChunkSize     int64         `json:"chunk_size"`
	ReceivedBytes int64         `json:"received_bytes"`
	ReceivedParts int           `json:"received_parts"`
	Status        SessionStatus `json:"status"`
	StoredFileID  string        `json:"stored_file_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ExpectedParts is ceil(TotalSize / ChunkSize).
func (s *SessionRecord) ExpectedParts() int {
	if s.ChunkSize <= 0 {
		return 0
	}
	return int((s.TotalSize + s.ChunkSize - 1) / s.ChunkSize)
}

// FileRecord describes an assembled artifact. Immutable after creation.
type FileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is the lifecycle state of a background analysis run.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobRecord tracks one full-file analysis. Keyed by file ID so at most one
// job exists per file. The result payload is kept as an embedded JSON
// document to stay storage-engine agnostic.
type JobRecord struct {
	FileID        string    `json:"file_id"`
	Status        JobStatus `json:"status"`
	Phase         string    `json:"phase,omitempty"`
	ProcessedRows int64     `json:"processed_rows"`
	TotalRows     int64     `json:"total_rows"`
	ResultJSON    string    `json:"result_json,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the metadata record store.
// Implementations: memory (testing), badger (production).
type Store interface {
	// PutSession creates or replaces a session record.
	PutSession(ctx context.Context, s *SessionRecord) error

	// GetSession returns the session or a NotFound error.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// PutFile creates a file record.
	PutFile(ctx context.Context, f *FileRecord) error

	// GetFile returns the file record or a NotFound error.
	GetFile(ctx context.Context, id string) (*FileRecord, error)

	// GetJob returns the job for a file or a NotFound error.
	GetJob(ctx context.Context, fileID string) (*JobRecord, error)

	// UpdateJob applies fn to the current job record (nil if absent) inside
	// a transaction and persists the result. Returning an error from fn
	// aborts the update; returning a nil record leaves the store untouched.
	// This is the compare-and-swap used for job state transitions, so
	// concurrent starters cannot both move queued -> running.
	UpdateJob(ctx context.Context, fileID string, fn func(cur *JobRecord) (*JobRecord, error)) (*JobRecord, error)

	// ListSessions returns all session records, newest first.
	ListSessions(ctx context.Context) ([]*SessionRecord, error)

	// Close cleanly shuts down the store.
	Close() error
}
