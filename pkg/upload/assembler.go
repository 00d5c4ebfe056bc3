// Package upload implements the resumable, integrity-checked chunked
// upload assembler: parts arrive in any order (with retries), are persisted
// individually, and are concatenated in strict index order into one
// content-addressed file on completion.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"payscope/pkg/config"
	"payscope/pkg/errs"
	"payscope/pkg/store"
)

// Assembler owns upload sessions end to end: session records in the store,
// part files on disk, and the assembly step.
type Assembler struct {
	store    store.Store
	parts    *PartStore
	filesDir string

	// One mutex per session serializes record updates and assembly.
	// Per-resource locking, never a global lock over all sessions.
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu         sync.Mutex
	assembling bool
}

// New creates an assembler rooted at dataDir (parts under uploads/,
// assembled files under files/).
func New(st store.Store, dataDir string) (*Assembler, error) {
	parts, err := NewPartStore(filepath.Join(dataDir, "uploads"))
	if err != nil {
		return nil, err
	}
	filesDir := filepath.Join(dataDir, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files directory: %w", err)
	}
	return &Assembler{
		store:    st,
		parts:    parts,
		filesDir: filesDir,
		locks:    make(map[string]*sessionLock),
	}, nil
}

func (a *Assembler) lock(sessionID string) *sessionLock {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	l, ok := a.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		a.locks[sessionID] = l
	}
	return l
}

// CreateSession starts a transfer.
func (a *Assembler) CreateSession(ctx context.Context, fileName string, totalSize, chunkSize int64) (*store.SessionRecord, error) {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	if totalSize <= 0 {
		return nil, errs.New(errs.KindValidation, "session", "total size must be positive, got %d", totalSize)
	}
	if totalSize > config.MaxUploadSize {
		return nil, errs.New(errs.KindValidation, "session", "total size %d exceeds limit %d", totalSize, config.MaxUploadSize)
	}

	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:        randomHex(16),
		FileName:  fileName,
		TotalSize: totalSize,
		ChunkSize: chunkSize,
		Status:    store.SessionUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.ExpectedParts() > config.MaxPartsPerSession {
		return nil, errs.New(errs.KindValidation, "session",
			"%d parts exceeds limit %d; use a larger chunk size", rec.ExpectedParts(), config.MaxPartsPerSession)
	}
	if err := a.store.PutSession(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PartResult reports one accepted part.
type PartResult struct {
	Accepted     bool  `json:"accepted"`
	BytesWritten int64 `json:"bytes_written"`
}

// AcceptPart validates and persists one chunk. Safe under concurrent
// writers for different indices of the same session; retries with the same
// length are no-ops.
func (a *Assembler) AcceptPart(ctx context.Context, sessionID string, index int, body io.Reader, declared int64) (*PartResult, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != store.SessionUploading {
		return nil, errs.New(errs.KindConflict, "part_write", "session %s is %s, not accepting parts", sessionID, session.Status)
	}

	expected := session.ExpectedParts()
	if index < 1 || index > expected {
		return nil, errs.New(errs.KindValidation, "part_write", "part index %d outside [1, %d]", index, expected)
	}

	maxLen := session.ChunkSize
	if index == expected {
		maxLen = session.TotalSize - session.ChunkSize*int64(expected-1)
	}
	if declared <= 0 {
		return nil, errs.New(errs.KindValidation, "part_write", "part %d has no declared length", index)
	}
	if declared > maxLen {
		return nil, errs.New(errs.KindValidation, "part_write",
			"part %d declares %d bytes, maximum for that index is %d", index, declared, maxLen)
	}

	written, existed, err := a.parts.WritePart(sessionID, index, body, declared)
	if err != nil {
		return nil, err
	}
	if existed {
		// Idempotent retry: counters were already advanced the first time.
		return &PartResult{Accepted: true, BytesWritten: 0}, nil
	}

	l := a.lock(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	session, err = a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.ReceivedBytes += written
	session.ReceivedParts++
	session.UpdatedAt = time.Now().UTC()
	if err := a.store.PutSession(ctx, session); err != nil {
		return nil, err
	}

	return &PartResult{Accepted: true, BytesWritten: written}, nil
}

// Complete assembles the parts in ascending index order into one file,
// hashing the byte stream as it is written. At most one assembly runs per
// session; completion of an already-completed session is an idempotent
// success.
func (a *Assembler) Complete(ctx context.Context, sessionID string, claimedParts int) (*store.FileRecord, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == store.SessionCompleted {
		return a.store.GetFile(ctx, session.StoredFileID)
	}
	if session.Status == store.SessionFailed {
		return nil, errs.New(errs.KindConflict, "assembly", "session %s was aborted", sessionID)
	}

	expected := session.ExpectedParts()
	if claimedParts > 0 && claimedParts != expected {
		return nil, errs.New(errs.KindValidation, "assembly",
			"client claims %d parts, session expects %d", claimedParts, expected)
	}

	l := a.lock(sessionID)
	l.mu.Lock()
	if l.assembling {
		l.mu.Unlock()
		return nil, errs.New(errs.KindConflict, "assembly", "assembly already in flight for session %s", sessionID)
	}
	l.assembling = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.assembling = false
		l.mu.Unlock()
	}()

	// Re-read under the assembly flag: a concurrent Complete may have won.
	session, err = a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == store.SessionCompleted {
		return a.store.GetFile(ctx, session.StoredFileID)
	}

	_, missing, err := a.parts.List(sessionID, expected)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, errs.New(errs.KindIncomplete, "assembly",
			"session %s is missing %d of %d parts: %v", sessionID, len(missing), expected, missing)
	}

	rec, err := a.assemble(ctx, session, expected)
	if err != nil {
		return nil, err
	}

	session.Status = store.SessionCompleted
	session.StoredFileID = rec.ID
	session.UpdatedAt = time.Now().UTC()
	if err := a.store.PutSession(ctx, session); err != nil {
		return nil, err
	}

	// Parts are no longer needed; deletion is best-effort and off the
	// completion path.
	go func() {
		if err := a.parts.Remove(sessionID); err != nil {
			log.Printf("Failed to remove parts for session %s: %v", sessionID, err)
		}
	}()

	return rec, nil
}

// assemble concatenates parts 1..expected into a temp file while computing
// the SHA-256 over the same byte stream (no second read pass), verifies the
// byte count, and moves the result into place. Any failure removes the
// partial output before returning; a partially assembled file is never
// visible under its final name.
func (a *Assembler) assemble(ctx context.Context, session *store.SessionRecord, expected int) (rec *store.FileRecord, err error) {
	tmp := filepath.Join(a.filesDir, ".assembling-"+session.ID)
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindUnknown, "assembly", "failed to create output file")
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	hasher := sha256.New()
	w := io.MultiWriter(out, hasher)

	var written int64
	for index := 1; index <= expected; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, openErr := a.parts.Open(session.ID, index)
		if openErr != nil {
			return nil, errs.Wrap(openErr, errs.KindUnknown, "assembly", fmt.Sprintf("failed to open part %d", index))
		}
		n, copyErr := io.Copy(w, part)
		part.Close()
		if copyErr != nil {
			return nil, errs.Wrap(copyErr, errs.KindUnknown, "assembly", fmt.Sprintf("failed to copy part %d", index))
		}
		written += n
	}

	if closeErr := out.Close(); closeErr != nil {
		return nil, errs.Wrap(closeErr, errs.KindUnknown, "assembly", "failed to flush output file")
	}

	if written != session.TotalSize {
		os.Remove(tmp)
		return nil, errs.New(errs.KindSizeMismatch, "assembly",
			"assembled %d bytes, session declared %d", written, session.TotalSize)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	final := filepath.Join(a.filesDir, digest)
	if renameErr := os.Rename(tmp, final); renameErr != nil {
		os.Remove(tmp)
		return nil, errs.Wrap(renameErr, errs.KindUnknown, "assembly", "failed to move assembled file into place")
	}

	rec = &store.FileRecord{
		ID:        digest,
		Name:      session.FileName,
		Size:      written,
		SHA256:    digest,
		Path:      final,
		CreatedAt: time.Now().UTC(),
	}
	if putErr := a.store.PutFile(ctx, rec); putErr != nil {
		os.Remove(final)
		return nil, putErr
	}
	return rec, nil
}

// Abort terminally fails a session and releases its part storage. No
// further parts are accepted afterwards.
func (a *Assembler) Abort(ctx context.Context, sessionID string) error {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == store.SessionCompleted {
		return errs.New(errs.KindConflict, "session", "session %s already completed", sessionID)
	}

	l := a.lock(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	session.Status = store.SessionFailed
	session.UpdatedAt = time.Now().UTC()
	if err := a.store.PutSession(ctx, session); err != nil {
		return err
	}
	return a.parts.Remove(sessionID)
}

// OpenFile opens an assembled file read-only for a streaming pass, so
// analysis reads never contend with writers.
func (a *Assembler) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, *store.FileRecord, error) {
	rec, err := a.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(rec.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.KindUnknown, "read", "failed to open assembled file")
	}
	return f, rec, nil
}

// SweepIdle fails uploading sessions with no activity for longer than ttl
// and releases their part storage.
func (a *Assembler) SweepIdle(ctx context.Context, ttl time.Duration) {
	sessions, err := a.store.ListSessions(ctx)
	if err != nil {
		log.Printf("Session sweep failed to list sessions: %v", err)
		return
	}
	cutoff := time.Now().UTC().Add(-ttl)
	for _, session := range sessions {
		if session.Status != store.SessionUploading || session.UpdatedAt.After(cutoff) {
			continue
		}
		if err := a.Abort(ctx, session.ID); err != nil {
			log.Printf("Session sweep failed to abort %s: %v", session.ID, err)
			continue
		}
		log.Printf("Swept idle upload session %s (last activity %s)", session.ID, session.UpdatedAt.Format(time.RFC3339))
	}
}
