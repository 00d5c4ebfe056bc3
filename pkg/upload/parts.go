package upload

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"payscope/pkg/errs"
)

// PartStore keeps uploaded chunks on disk, one file per (session, index)
// under <root>/<sessionID>/part_NNNNN. A part slot is either absent or
// fully written; there is never a partially-visible part.
type PartStore struct {
	root string
}

// NewPartStore creates the part root directory if needed.
func NewPartStore(root string) (*PartStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create part root: %w", err)
	}
	return &PartStore{root: root}, nil
}

func (p *PartStore) sessionDir(sessionID string) string {
	return filepath.Join(p.root, sessionID)
}

func (p *PartStore) partPath(sessionID string, index int) string {
	return filepath.Join(p.sessionDir(sessionID), fmt.Sprintf("part_%05d", index))
}

// WritePart persists one chunk with atomic create-or-fail semantics: the
// bytes are written to a private temp file and hard-linked into the final
// slot, which fails if the slot already exists. A retry with an identical
// length is an idempotent no-op; a different length is a conflict, since
// the slot is immutable once written.
func (p *PartStore) WritePart(sessionID string, index int, r io.Reader, declared int64) (written int64, existed bool, err error) {
	if st, statErr := os.Stat(p.partPath(sessionID, index)); statErr == nil {
		return 0, true, p.checkExisting(sessionID, index, st.Size(), declared)
	}

	if err := os.MkdirAll(p.sessionDir(sessionID), 0o755); err != nil {
		return 0, false, errs.Wrap(err, errs.KindUnknown, "part_write", "failed to create session directory")
	}

	final := p.partPath(sessionID, index)
	tmp := final + ".tmp." + randomHex(8)

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, false, errs.Wrap(err, errs.KindUnknown, "part_write", "failed to create temp part")
	}

	written, err = io.Copy(f, io.LimitReader(r, declared+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, false, errs.Wrap(err, errs.KindUnknown, "part_write", "failed to write part bytes")
	}
	if written != declared {
		os.Remove(tmp)
		return 0, false, errs.New(errs.KindValidation, "part_write",
			"part %d body is %d bytes, declared %d", index, written, declared)
	}

	// Hard link is atomic and fails if the slot exists, so two concurrent
	// writers for the same index cannot both win and nobody ever observes
	// a half-written slot.
	if err := os.Link(tmp, final); err != nil {
		os.Remove(tmp)
		if os.IsExist(err) {
			st, statErr := os.Stat(final)
			if statErr != nil {
				return 0, false, errs.Wrap(statErr, errs.KindUnknown, "part_write", "failed to stat winning part")
			}
			return 0, true, p.checkExisting(sessionID, index, st.Size(), declared)
		}
		return 0, false, errs.Wrap(err, errs.KindUnknown, "part_write", "failed to commit part")
	}
	os.Remove(tmp)

	return written, false, nil
}

func (p *PartStore) checkExisting(sessionID string, index int, existing, declared int64) error {
	if existing == declared {
		return nil // idempotent retry
	}
	return errs.New(errs.KindConflict, "part_write",
		"part %d already exists with %d bytes, declared %d", index, existing, declared)
}

// List returns the present part indices with their sizes, plus the missing
// indices in [1, expected].
func (p *PartStore) List(sessionID string, expected int) (present map[int]int64, missing []int, err error) {
	present = make(map[int]int64)

	entries, err := os.ReadDir(p.sessionDir(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, errs.Wrap(err, errs.KindUnknown, "assembly", "failed to list parts")
	}
	for _, entry := range entries {
		var index int
		if _, err := fmt.Sscanf(entry.Name(), "part_%05d", &index); err != nil {
			continue // temp files and strays
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		present[index] = info.Size()
	}

	for i := 1; i <= expected; i++ {
		if _, ok := present[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return present, missing, nil
}

// Open opens one part read-only.
func (p *PartStore) Open(sessionID string, index int) (*os.File, error) {
	return os.Open(p.partPath(sessionID, index))
}

// Remove deletes all parts of a session.
func (p *PartStore) Remove(sessionID string) error {
	return os.RemoveAll(p.sessionDir(sessionID))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(buf)
}
