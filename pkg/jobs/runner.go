package jobs

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/errs"
	"payscope/pkg/store"
	"payscope/pkg/txn"
	"payscope/pkg/upload"
)

// Job phases, surfaced through the job record and progress events.
const (
	PhaseScanning = "scanning"
	PhaseDone     = "done"
)

// fullFileDims are the dimensions materialized by a background analysis.
// One pass over the whole file, no sampling cap.
var fullFileDims = []engine.Dimension{
	engine.DimPaymentMode,
	engine.DimGateway,
	engine.DimBank,
	engine.DimFailureCategory,
	engine.DimFailureReason,
}

// Result is the analysis payload persisted on job completion, embedded in
// the job record as JSON.
type Result struct {
	Global         engine.Counts                   `json:"global"`
	SR             float64                         `json:"sr"`
	SuccessGMV     float64                         `json:"success_gmv"`
	Trend          []engine.DailyPoint             `json:"trend"`
	Groups         map[string][]engine.GroupResult `json:"groups"`
	FailureReasons []engine.ReasonCount            `json:"failure_reasons"`
	Stats          engine.ScanStats                `json:"stats"`
}

// Progress is the event broadcast to WebSocket clients as a job advances.
type Progress struct {
	FileID        string          `json:"file_id"`
	Status        store.JobStatus `json:"status"`
	Phase         string          `json:"phase"`
	ProcessedRows int64           `json:"processed_rows"`
	Error         string          `json:"error,omitempty"`
}

// Runner executes at most one full-file analysis per file. Cross-process
// exclusion comes from the store's transactional job updates; the active
// map only prevents this process from spawning duplicate workers.
type Runner struct {
	store     store.Store
	assembler *upload.Assembler
	hub       *ProgressHub

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a job runner. The hub may be nil when progress
// streaming is not wanted (tests).
func NewRunner(st store.Store, assembler *upload.Assembler, hub *ProgressHub) *Runner {
	return &Runner{
		store:     st,
		assembler: assembler,
		hub:       hub,
		active:    make(map[string]context.CancelFunc),
	}
}

// Start queues and launches an analysis job for a file. Starting is
// idempotent: if a job is already queued, running, or completed, the
// existing record is returned and started is false. A failed job may be
// restarted.
func (r *Runner) Start(ctx context.Context, fileID string) (rec *store.JobRecord, started bool, err error) {
	if _, err := r.store.GetFile(ctx, fileID); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if _, busy := r.active[fileID]; busy {
		r.mu.Unlock()
		rec, err := r.store.GetJob(ctx, fileID)
		return rec, false, err
	}

	// Reserve the slot before the store transition so a concurrent Start
	// in this process cannot slip in between.
	jobCtx, cancel := context.WithCancel(context.Background())
	r.active[fileID] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.active, fileID)
		r.mu.Unlock()
		cancel()
	}

	now := time.Now()
	rec, err = r.store.UpdateJob(ctx, fileID, func(cur *store.JobRecord) (*store.JobRecord, error) {
		if cur != nil && cur.Status != store.JobFailed {
			started = false
			return cur, nil
		}
		started = true
		return &store.JobRecord{
			FileID:    fileID,
			Status:    store.JobQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	if err != nil || !started {
		release()
		return rec, false, err
	}

	// queued -> running is a second transition so a crash between the two
	// leaves a queued record that a restart can pick up again.
	rec, err = r.store.UpdateJob(ctx, fileID, func(cur *store.JobRecord) (*store.JobRecord, error) {
		if cur == nil || cur.Status != store.JobQueued {
			return cur, errs.New(errs.KindConflict, "jobs", "job for file %s no longer queued", fileID)
		}
		next := *cur
		next.Status = store.JobRunning
		next.Phase = PhaseScanning
		next.UpdatedAt = time.Now()
		return &next, nil
	})
	if err != nil {
		release()
		if errs.KindOf(err) == errs.KindConflict {
			rec, gerr := r.store.GetJob(ctx, fileID)
			return rec, false, gerr
		}
		return nil, false, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer release()
		r.run(jobCtx, fileID)
	}()

	return rec, true, nil
}

// Status returns the job record for a file.
func (r *Runner) Status(ctx context.Context, fileID string) (*store.JobRecord, error) {
	return r.store.GetJob(ctx, fileID)
}

// Stop cancels all running jobs and waits for their workers to exit.
// In-flight jobs are marked failed so they can be restarted later.
func (r *Runner) Stop() {
	r.mu.Lock()
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, fileID string) {
	log.Printf("Analysis job started for file %s", fileID)

	err := r.analyze(ctx, fileID)
	if err == nil {
		log.Printf("Analysis job completed for file %s", fileID)
		return
	}

	log.Printf("Analysis job for file %s failed: %v", fileID, err)
	_, uerr := r.store.UpdateJob(context.Background(), fileID, func(cur *store.JobRecord) (*store.JobRecord, error) {
		if cur == nil || cur.Status != store.JobRunning {
			return cur, nil
		}
		next := *cur
		next.Status = store.JobFailed
		next.Error = err.Error()
		next.UpdatedAt = time.Now()
		return &next, nil
	})
	if uerr != nil {
		log.Printf("Failed to record job failure for file %s: %v", fileID, uerr)
	}
	r.notify(fileID, store.JobFailed, PhaseScanning, 0, err.Error())
}

func (r *Runner) analyze(ctx context.Context, fileID string) error {
	rc, _, err := r.assembler.OpenFile(ctx, fileID)
	if err != nil {
		return err
	}
	defer rc.Close()

	agg := engine.NewAggregator(engine.Filter{}.Compile(), fullFileDims...)

	var rows int64
	stats, err := engine.Scan(ctx, rc, func(t *txn.Transaction) bool {
		agg.Consume(t)
		rows++
		if rows%config.ProgressCheckpointRows == 0 {
			r.checkpoint(fileID, rows)
		}
		return true
	})
	if err != nil {
		return err
	}

	groups := make(map[string][]engine.GroupResult, len(fullFileDims))
	for _, d := range fullFileDims {
		groups[string(d)] = agg.Results(d)
	}
	result := Result{
		Global:         agg.Global(),
		SR:             agg.Global().SR(),
		SuccessGMV:     agg.SuccessGMV(),
		Trend:          agg.GlobalTrend(),
		Groups:         groups,
		FailureReasons: agg.FailureReasons(50),
		Stats:          stats,
	}
	payload, err := json.Marshal(&result)
	if err != nil {
		return errs.Wrap(err, errs.KindUnknown, "jobs", "encode analysis result")
	}

	_, err = r.store.UpdateJob(context.Background(), fileID, func(cur *store.JobRecord) (*store.JobRecord, error) {
		if cur == nil {
			return nil, errs.New(errs.KindNotFound, "jobs", "job record for file %s vanished", fileID)
		}
		next := *cur
		next.Status = store.JobCompleted
		next.Phase = PhaseDone
		next.ProcessedRows = stats.RowsRead
		next.TotalRows = stats.RowsRead
		next.ResultJSON = string(payload)
		next.Error = ""
		next.UpdatedAt = time.Now()
		return &next, nil
	})
	if err != nil {
		return err
	}

	r.notify(fileID, store.JobCompleted, PhaseDone, stats.RowsRead, "")
	return nil
}

// checkpoint persists progress so a status poll sees movement on large
// files. Checkpoint failures are logged, never fatal to the scan.
func (r *Runner) checkpoint(fileID string, rows int64) {
	_, err := r.store.UpdateJob(context.Background(), fileID, func(cur *store.JobRecord) (*store.JobRecord, error) {
		if cur == nil || cur.Status != store.JobRunning {
			return cur, nil
		}
		next := *cur
		next.ProcessedRows = rows
		next.UpdatedAt = time.Now()
		return &next, nil
	})
	if err != nil {
		log.Printf("Progress checkpoint for file %s failed: %v", fileID, err)
	}
	r.notify(fileID, store.JobRunning, PhaseScanning, rows, "")
}

func (r *Runner) notify(fileID string, status store.JobStatus, phase string, rows int64, errMsg string) {
	if r.hub == nil || !r.hub.HasClients() {
		return
	}
	r.hub.Broadcast(fileID, Progress{
		FileID:        fileID,
		Status:        status,
		Phase:         phase,
		ProcessedRows: rows,
		Error:         errMsg,
	})
}
