package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"payscope/pkg/store"
	"payscope/pkg/store/memory"
	"payscope/pkg/upload"
)

func newTestHandler(t *testing.T, csv string) *Handler {
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

	return NewHandler(assembler)
}

func postJSON(t *testing.T, h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestFilterPayload_Filter(t *testing.T) {
	p := &FilterPayload{DateFrom: "2025-10-01", DateTo: "2025-10-03", Gateways: []string{"PAYU"}}
	f, err := p.Filter()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), f.From)
	// DateTo is inclusive through the last instant of the day
	require.Equal(t, time.Date(2025, 10, 3, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), f.To)
	require.Equal(t, []string{"PAYU"}, f.Gateways)

	_, err = (&FilterPayload{DateFrom: "03-10-2025"}).Filter()
	require.Error(t, err)

	_, err = (&FilterPayload{DateFrom: "2025-10-03", DateTo: "2025-10-01"}).Filter()
	require.Error(t, err)
}

const overviewCSV = `tx_status,payment_mode,gateway,tx_time,tx_amount
SUCCESS,UPI,PAYU,2025-10-01T10:00:00Z,100
SUCCESS,UPI,PAYU,2025-10-02T10:00:00Z,150
FAILED,CARD,RAZORPAY,2025-10-02T11:00:00Z,200
SUCCESS,CARD,RAZORPAY,2025-10-03T12:00:00Z,300
`

func TestHandleView_Overview(t *testing.T) {
	h := newTestHandler(t, overviewCSV)

	w := postJSON(t, h.HandleView("overview"), FilterPayload{FileID: "f1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ViewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(4), resp.Global.Volume)
	require.Equal(t, int64(3), resp.Global.Success)
	require.Equal(t, 75.0, resp.SR)
	require.Equal(t, 550.0, resp.SuccessGMV)
	require.Len(t, resp.Groups["payment_mode"], 2)
	require.Len(t, resp.Groups["gateway"], 2)
	require.Len(t, resp.Trend, 3)
	require.Equal(t, int64(4), resp.Stats.RowsRead)
}

func TestHandleView_DateFilterNarrowsWindow(t *testing.T) {
	h := newTestHandler(t, overviewCSV)

	w := postJSON(t, h.HandleView("overview"), FilterPayload{
		FileID:   "f1",
		DateFrom: "2025-10-02",
		DateTo:   "2025-10-02",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ViewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Global.Volume)
	require.Equal(t, int64(1), resp.Global.Success)
}

const upiCSV = `tx_status,payment_mode,gateway,tx_time,tx_amount,vpa
SUCCESS,UPI,PAYU,2025-10-01T10:00:00Z,100,alice@okhdfc
FAILED,UPI,PAYU,2025-10-01T11:00:00Z,50,
SUCCESS,CARD,RAZORPAY,2025-10-01T12:00:00Z,200,
`

func TestHandleView_UPIDefaultsModesAndHidesUnknownHandle(t *testing.T) {
	h := newTestHandler(t, upiCSV)

	w := postJSON(t, h.HandleView("upi"), FilterPayload{FileID: "f1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ViewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// The CARD row fell outside the view's default mode set.
	require.Equal(t, int64(2), resp.Global.Volume)

	// The blank-VPA row counts globally but its Unknown handle bucket is
	// withheld from the handle grouping.
	handles := resp.Groups["handle"]
	require.Len(t, handles, 1)
	require.Equal(t, "okhdfc", handles[0].Value)
	require.Equal(t, int64(1), handles[0].Volume)
}

func TestHandleView_Validation(t *testing.T) {
	h := newTestHandler(t, overviewCSV)

	w := postJSON(t, h.HandleView("overview"), FilterPayload{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, h.HandleView("overview"), FilterPayload{FileID: "nope"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleView_PathFileIDAuthoritative(t *testing.T) {
	h := newTestHandler(t, overviewCSV)
	router := mux.NewRouter()
	router.HandleFunc("/v1/files/{id}/overview", h.HandleView("overview")).Methods(http.MethodPost)
	router.HandleFunc("/v1/files/{id}/rca", h.HandleRCA).Methods(http.MethodPost)

	send := func(path string, body interface{}) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// The path segment alone identifies the file; no body file_id needed.
	w := send("/v1/files/f1/overview", FilterPayload{})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ViewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(4), resp.Global.Volume)

	// A body naming a different file than the path is rejected, never
	// silently analyzed.
	w = send("/v1/files/f1/overview", FilterPayload{FileID: "other"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send("/v1/files/f1/rca", RCARequest{FilterPayload: FilterPayload{FileID: "other"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A matching body file_id stays accepted.
	w = send("/v1/files/f1/overview", FilterPayload{FileID: "f1"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleView_UnknownViewPanics(t *testing.T) {
	h := newTestHandler(t, overviewCSV)
	require.Panics(t, func() { h.HandleView("bogus") })
}

// rcaCSV spans two adjacent weeks anchored at 2025-10-14T12:00:00Z. The
// previous week is all success, the current week degrades to 50%.
const rcaCSV = `tx_status,payment_mode,gateway,tx_time,tx_amount
SUCCESS,UPI,PAYU,2025-10-05T09:00:00Z,100
SUCCESS,UPI,PAYU,2025-10-06T09:00:00Z,100
SUCCESS,UPI,PAYU,2025-10-12T09:00:00Z,100
FAILED,UPI,PAYU,2025-10-13T09:00:00Z,100
SUCCESS,UPI,PAYU,2025-10-14T09:00:00Z,100
FAILED,UPI,PAYU,2025-10-14T12:00:00Z,100
`

func TestHandleRCA_WindowsAndComparison(t *testing.T) {
	h := newTestHandler(t, rcaCSV)

	w := postJSON(t, h.HandleRCA, RCARequest{
		FilterPayload: FilterPayload{FileID: "f1"},
		Mode:          "UPI",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp RCAResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	max := time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)
	require.True(t, resp.CurrentTo.Equal(max))
	require.True(t, resp.CurrentFrom.Equal(max.AddDate(0, 0, -7)))
	require.True(t, resp.PreviousFrom.Equal(max.AddDate(0, 0, -14)))
	require.True(t, resp.PreviousTo.Before(resp.CurrentFrom))
	require.False(t, resp.SampledAtCap)

	cmp := resp.Comparison
	require.NotNil(t, cmp)
	require.Equal(t, int64(4), cmp.Current.Total)
	require.Equal(t, int64(2), cmp.Current.Success)
	require.Equal(t, int64(2), cmp.Previous.Total)
	require.Equal(t, int64(2), cmp.Previous.Success)
	require.Equal(t, -50.0, cmp.SRDelta)
	require.Equal(t, "UPI", cmp.Mode)
}

func TestHandleRCA_NoMatchingRows(t *testing.T) {
	h := newTestHandler(t, rcaCSV)

	w := postJSON(t, h.HandleRCA, RCARequest{
		FilterPayload: FilterPayload{FileID: "f1", Gateways: []string{"NOPE"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "no transactions match the filter")
}

func TestHandleRCA_RequiresFileID(t *testing.T) {
	h := newTestHandler(t, rcaCSV)
	w := postJSON(t, h.HandleRCA, RCARequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSample(t *testing.T) {
	h := newTestHandler(t, overviewCSV)

	w := postJSON(t, http.HandlerFunc(h.HandleSample), FilterPayload{
		FileID:   "f1",
		Gateways: []string{"RAZORPAY"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SampleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 2)
	require.False(t, resp.Capped)
	for _, row := range resp.Rows {
		require.Equal(t, "RAZORPAY", row.Gateway)
	}
}
