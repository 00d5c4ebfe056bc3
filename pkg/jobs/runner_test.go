package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"payscope/pkg/errs"
	"payscope/pkg/store"
	"payscope/pkg/store/memory"
	"payscope/pkg/upload"
)

const jobCSV = `tx_status,payment_mode,gateway,tx_time,tx_amount
SUCCESS,UPI,PAYU,2025-10-01T10:00:00Z,100
FAILED,UPI,PAYU,2025-10-02T11:00:00Z,200
SUCCESS,CARD,RAZORPAY,2025-10-03T12:00:00Z,300
`

func newTestRunner(t *testing.T, csv string) (*Runner, store.Store) {
	t.Helper()
	st := memory.New()
	assembler, err := upload.New(st, t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
	require.NoError(t, st.PutFile(context.Background(), &store.FileRecord{
		ID:   "f1",
		Name: "export.csv",
		Size: int64(len(csv)),
		Path: path,
	}))

	return NewRunner(st, assembler, nil), st
}

func waitForJob(t *testing.T, r *Runner, fileID string, want store.JobStatus) *store.JobRecord {
	t.Helper()
	var rec *store.JobRecord
	require.Eventually(t, func() bool {
		got, err := r.Status(context.Background(), fileID)
		if err != nil {
			return false
		}
		rec = got
		return got.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return rec
}

func TestRunner_CompletesAndPersistsResult(t *testing.T) {
	r, _ := newTestRunner(t, jobCSV)

	rec, started, err := r.Start(context.Background(), "f1")
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, store.JobRunning, rec.Status)

	rec = waitForJob(t, r, "f1", store.JobCompleted)
	require.Equal(t, int64(3), rec.ProcessedRows)
	require.Equal(t, int64(3), rec.TotalRows)
	require.Equal(t, PhaseDone, rec.Phase)
	require.Empty(t, rec.Error)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(rec.ResultJSON), &result))
	require.Equal(t, int64(3), result.Global.Volume)
	require.Equal(t, int64(2), result.Global.Success)
	require.Equal(t, 66.67, result.SR)
	require.Equal(t, 400.0, result.SuccessGMV)
	require.NotEmpty(t, result.Groups["gateway"])
	require.Len(t, result.Trend, 3)
}

func TestRunner_StartIsIdempotentOnceCompleted(t *testing.T) {
	r, _ := newTestRunner(t, jobCSV)

	_, started, err := r.Start(context.Background(), "f1")
	require.NoError(t, err)
	require.True(t, started)
	waitForJob(t, r, "f1", store.JobCompleted)

	rec, started, err := r.Start(context.Background(), "f1")
	require.NoError(t, err)
	require.False(t, started)
	require.Equal(t, store.JobCompleted, rec.Status)
}

func TestRunner_UnknownFile(t *testing.T) {
	r, _ := newTestRunner(t, jobCSV)
	_, _, err := r.Start(context.Background(), "missing")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRunner_BadFileFailsJobAndAllowsRestart(t *testing.T) {
	r, st := newTestRunner(t, jobCSV)

	// A file record pointing at nothing makes the analysis fail.
	require.NoError(t, st.PutFile(context.Background(), &store.FileRecord{
		ID:   "broken",
		Path: filepath.Join(t.TempDir(), "does-not-exist.csv"),
	}))

	_, started, err := r.Start(context.Background(), "broken")
	require.NoError(t, err)
	require.True(t, started)

	rec := waitForJob(t, r, "broken", store.JobFailed)
	require.NotEmpty(t, rec.Error)

	// Failed jobs may be restarted
	r.Stop()
	_, started, err = r.Start(context.Background(), "broken")
	require.NoError(t, err)
	require.True(t, started)
	waitForJob(t, r, "broken", store.JobFailed)
	r.Stop()
}

func TestRunner_StatusNotFoundBeforeStart(t *testing.T) {
	r, _ := newTestRunner(t, jobCSV)
	_, err := r.Status(context.Background(), "f1")
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
