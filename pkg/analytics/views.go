// Package analytics exposes the per-view metrics endpoints. Each request
// is one independent forward pass of the aggregation engine over the
// assembled file; the RCA endpoint runs the two-pass window protocol and
// hands the materialized periods to the rca package.
package analytics

import (
	"context"
	"io"
	"time"

	"payscope/pkg/engine"
	"payscope/pkg/errs"
	"payscope/pkg/store"
	"payscope/pkg/txn"
)

// FilterPayload is the client-facing filter for every analytics view.
type FilterPayload struct {
	FileID       string   `json:"file_id"`
	DateFrom     string   `json:"date_from,omitempty"` // "2006-01-02"
	DateTo       string   `json:"date_to,omitempty"`
	PaymentModes []string `json:"payment_modes,omitempty"`
	Merchants    []string `json:"merchants,omitempty"`
	Gateways     []string `json:"gateways,omitempty"`
	Banks        []string `json:"banks,omitempty"`
	CardTypes    []string `json:"card_types,omitempty"`
}

// Filter validates and converts the payload. DateTo is inclusive through
// end of day.
func (p *FilterPayload) Filter() (engine.Filter, error) {
	var f engine.Filter
	if p.DateFrom != "" {
		from, err := time.Parse("2006-01-02", p.DateFrom)
		if err != nil {
			return f, errs.New(errs.KindValidation, "filter", "invalid date_from %q", p.DateFrom)
		}
		f.From = from
	}
	if p.DateTo != "" {
		to, err := time.Parse("2006-01-02", p.DateTo)
		if err != nil {
			return f, errs.New(errs.KindValidation, "filter", "invalid date_to %q", p.DateTo)
		}
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errs.New(errs.KindValidation, "filter", "date_to %q before date_from %q", p.DateTo, p.DateFrom)
	}
	f.Modes = p.PaymentModes
	f.Merchants = p.Merchants
	f.Gateways = p.Gateways
	f.Banks = p.Banks
	f.CardTypes = p.CardTypes
	return f, nil
}

// viewSpec describes one analytics view: which dimensions to group on and
// which dimension values to withhold from output.
type viewSpec struct {
	defaultModes []string
	dims         []engine.Dimension
	exclude      map[engine.Dimension]string
}

var viewSpecs = map[string]viewSpec{
	"overview": {
		dims: []engine.Dimension{engine.DimPaymentMode, engine.DimGateway},
	},
	"upi": {
		defaultModes: []string{"UPI", "UPI_COLLECT", "UPI_INTENT"},
		dims: []engine.Dimension{
			engine.DimGateway, engine.DimFlow, engine.DimPSP, engine.DimHandle,
		},
		// Handle-level output drops the Unknown bucket; it still counted
		// toward every denominator upstream.
		exclude: map[engine.Dimension]string{engine.DimHandle: txn.Unknown},
	},
	"cards": {
		defaultModes: []string{"CARD", "CREDIT_CARD", "DEBIT_CARD"},
		dims: []engine.Dimension{
			engine.DimGateway, engine.DimCardType, engine.DimCardScope,
			engine.DimBank, engine.DimBankTier,
		},
	},
	"netbanking": {
		defaultModes: []string{"NB", "NETBANKING", "NET_BANKING"},
		dims:         []engine.Dimension{engine.DimGateway, engine.DimBank, engine.DimBankTier},
	},
}

// ViewResponse is the JSON payload of a metrics view.
type ViewResponse struct {
	File           *store.FileRecord                 `json:"file"`
	Global         engine.Counts                     `json:"global"`
	SR             float64                           `json:"sr"`
	SuccessGMV     float64                           `json:"success_gmv"`
	Trend          []engine.DailyPoint               `json:"trend"`
	Groups         map[string][]engine.GroupResult   `json:"groups"`
	FailureReasons []engine.ReasonCount              `json:"failure_reasons"`
	Stats          engine.ScanStats                  `json:"stats"`
}

// runView performs one aggregation pass for a view.
func runView(ctx context.Context, open func() (io.ReadCloser, *store.FileRecord, error), spec viewSpec, f engine.Filter) (*ViewResponse, error) {
	if len(f.Modes) == 0 {
		f.Modes = spec.defaultModes
	}
	matcher := f.Compile()

	r, rec, err := open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	agg := engine.NewAggregator(matcher, spec.dims...)
	stats, err := engine.Scan(ctx, r, agg.Consume)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]engine.GroupResult, len(spec.dims))
	for _, dim := range spec.dims {
		groups[string(dim)] = agg.ResultsExcluding(dim, spec.exclude[dim])
	}

	return &ViewResponse{
		File:           rec,
		Global:         agg.Global(),
		SR:             agg.Global().SR(),
		SuccessGMV:     agg.SuccessGMV(),
		Trend:          agg.GlobalTrend(),
		Groups:         groups,
		FailureReasons: agg.FailureReasons(20),
		Stats:          stats,
	}, nil
}
