package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"payscope/pkg/config"
	"payscope/pkg/engine"
	"payscope/pkg/errs"
	"payscope/pkg/httpx"
	"payscope/pkg/rca"
	"payscope/pkg/store"
	"payscope/pkg/txn"
	"payscope/pkg/upload"
)

// Handler serves the analytics views.
type Handler struct {
	assembler *upload.Assembler
}

// NewHandler creates an analytics handler reading assembled files through
// the upload assembler.
func NewHandler(assembler *upload.Assembler) *Handler {
	return &Handler{assembler: assembler}
}

// HandleView returns the handler for one named view (overview, upi, cards,
// netbanking).
func (h *Handler) HandleView(view string) http.HandlerFunc {
	spec, ok := viewSpecs[view]
	if !ok {
		panic("unknown analytics view: " + view)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		payload, f, err := decodeFilter(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), config.AnalyticsQueryTimeout)
		defer cancel()

		resp, err := runView(ctx, h.opener(ctx, payload.FileID), spec, f)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// RCARequest extends the filter payload with the comparison parameters.
type RCARequest struct {
	FilterPayload
	Mode       string `json:"mode,omitempty"`        // mode group: UPI, CARD, NB, WALLET, ALL
	PeriodDays int    `json:"period_days,omitempty"` // default 7
}

// RCAResponse wraps the period comparison with its window bounds.
type RCAResponse struct {
	File          *store.FileRecord     `json:"file"`
	CurrentFrom   time.Time             `json:"current_from"`
	CurrentTo     time.Time             `json:"current_to"`
	PreviousFrom  time.Time             `json:"previous_from"`
	PreviousTo    time.Time             `json:"previous_to"`
	SampledAtCap  bool                  `json:"sampled_at_cap"`
	Comparison    *rca.PeriodComparison `json:"comparison"`
}

// HandleRCA runs the two-pass protocol: pass 1 discovers the window bounds
// over the filtered subset, pass 2 materializes the two periods (bounded by
// the sampling cap) and hands them to the RCA engine. Both passes compile
// the filter exactly once, so their predicates cannot drift.
func (h *Handler) HandleRCA(w http.ResponseWriter, r *http.Request) {
	var req RCARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, errs.Wrap(err, errs.KindValidation, "filter", "invalid JSON body"))
		return
	}
	if err := resolveFileID(r, &req.FilterPayload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.PeriodDays <= 0 {
		req.PeriodDays = 7
	}
	f, err := req.Filter()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(f.Modes) == 0 {
		f.Modes = rca.ExpandMode(req.Mode)
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.AnalyticsQueryTimeout)
	defer cancel()
	open := h.opener(ctx, req.FileID)

	matcher := f.Compile()

	stream, rec, err := open()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	_, max, found, err := engine.DiscoverWindow(ctx, stream, matcher)
	stream.Close()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !found {
		httpx.RespondError(w, errs.New(errs.KindValidation, "rca", "no transactions match the filter"))
		return
	}

	period := time.Duration(req.PeriodDays) * 24 * time.Hour
	curFrom := max.Add(-period)
	prevFrom := curFrom.Add(-period)
	prevTo := curFrom.Add(-time.Nanosecond)

	// The two periods are independent read-only passes over the same
	// file; run them concurrently on separate handles.
	currentSampler := engine.NewSampler(f.WithWindow(curFrom, max).Compile(), config.MaxSampledRows)
	previousSampler := engine.NewSampler(f.WithWindow(prevFrom, prevTo).Compile(), config.MaxSampledRows)

	g, gctx := errgroup.WithContext(ctx)
	for _, sampler := range []*engine.Sampler{currentSampler, previousSampler} {
		sampler := sampler
		g.Go(func() error {
			stream, _, err := open()
			if err != nil {
				return err
			}
			defer stream.Close()
			_, err = engine.Scan(gctx, stream, sampler.Consume)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		httpx.RespondError(w, err)
		return
	}

	comparison := rca.Compare(currentSampler.Rows(), previousSampler.Rows(), req.Mode)

	httpx.RespondJSON(w, http.StatusOK, RCAResponse{
		File:         rec,
		CurrentFrom:  curFrom,
		CurrentTo:    max,
		PreviousFrom: prevFrom,
		PreviousTo:   prevTo,
		SampledAtCap: currentSampler.Capped() || previousSampler.Capped(),
		Comparison:   comparison,
	})
}

// SampleResponse returns raw normalized rows, capped.
type SampleResponse struct {
	File   *store.FileRecord  `json:"file"`
	Rows   []*txn.Transaction `json:"rows"`
	Capped bool               `json:"capped"`
}

// HandleSample handles POST /v1/analytics/sample: materializes matching
// rows up to the sampling cap and stops reading early once it is hit.
func (h *Handler) HandleSample(w http.ResponseWriter, r *http.Request) {
	payload, f, err := decodeFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.AnalyticsQueryTimeout)
	defer cancel()

	stream, rec, err := h.opener(ctx, payload.FileID)()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer stream.Close()

	sampler := engine.NewSampler(f.Compile(), config.MaxSampledRows)
	if _, err := engine.Scan(ctx, stream, sampler.Consume); err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, SampleResponse{
		File:   rec,
		Rows:   sampler.Rows(),
		Capped: sampler.Capped(),
	})
}

func (h *Handler) opener(ctx context.Context, fileID string) func() (io.ReadCloser, *store.FileRecord, error) {
	return func() (io.ReadCloser, *store.FileRecord, error) {
		return h.assembler.OpenFile(ctx, fileID)
	}
}

func decodeFilter(r *http.Request) (*FilterPayload, engine.Filter, error) {
	var payload FilterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, engine.Filter{}, errs.Wrap(err, errs.KindValidation, "filter", "invalid JSON body")
	}
	if err := resolveFileID(r, &payload); err != nil {
		return nil, engine.Filter{}, err
	}
	f, err := payload.Filter()
	if err != nil {
		return nil, engine.Filter{}, err
	}
	return &payload, f, nil
}

// resolveFileID reconciles the route's {id} segment with the body's
// file_id. The path is authoritative when present; a body naming a
// different file is rejected rather than silently overridden.
func resolveFileID(r *http.Request, payload *FilterPayload) error {
	if id := mux.Vars(r)["id"]; id != "" {
		if payload.FileID != "" && payload.FileID != id {
			return errs.New(errs.KindValidation, "filter",
				"body file_id %q does not match the requested file %q", payload.FileID, id)
		}
		payload.FileID = id
	}
	if payload.FileID == "" {
		return errs.New(errs.KindValidation, "filter", "file_id is required")
	}
	return nil
}
