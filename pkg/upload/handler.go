package upload

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"payscope/pkg/errs"
	"payscope/pkg/httpx"
	"payscope/pkg/store"
)

// Handler exposes the upload assembler over HTTP.
type Handler struct {
	assembler *Assembler
	store     store.Store
}

// NewHandler creates an upload handler.
func NewHandler(assembler *Assembler, st store.Store) *Handler {
	return &Handler{assembler: assembler, store: st}
}

// CreateSessionRequest starts a transfer.
type CreateSessionRequest struct {
	FileName  string `json:"file_name"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int64  `json:"chunk_size,omitempty"`
}

// HandleCreateSession handles POST /v1/uploads.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, errs.Wrap(err, errs.KindValidation, "session", "invalid JSON body"))
		return
	}
	if req.FileName == "" {
		httpx.RespondError(w, errs.New(errs.KindValidation, "session", "file_name is required"))
		return
	}

	session, err := h.assembler.CreateSession(r.Context(), req.FileName, req.TotalSize, req.ChunkSize)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, session)
}

// HandleAcceptPart handles PUT /v1/uploads/{id}/parts/{index}. The raw part
// bytes are the request body; Content-Length is the declared part length.
func (h *Handler) HandleAcceptPart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		httpx.RespondError(w, errs.New(errs.KindValidation, "part_write", "invalid part index %q", vars["index"]))
		return
	}
	if r.ContentLength < 0 {
		httpx.RespondError(w, errs.New(errs.KindValidation, "part_write", "missing Content-Length"))
		return
	}

	result, err := h.assembler.AcceptPart(r.Context(), sessionID, index, r.Body, r.ContentLength)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}

// CompleteRequest optionally cross-checks the client's view of the part
// count.
type CompleteRequest struct {
	PartCount int `json:"part_count,omitempty"`
}

// CompleteResponse reports the assembled artifact.
type CompleteResponse struct {
	FileID string `json:"file_id"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// HandleComplete handles POST /v1/uploads/{id}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req CompleteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.RespondError(w, errs.Wrap(err, errs.KindValidation, "assembly", "invalid JSON body"))
			return
		}
	}

	rec, err := h.assembler.Complete(r.Context(), sessionID, req.PartCount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, CompleteResponse{
		FileID: rec.ID,
		SHA256: rec.SHA256,
		Size:   rec.Size,
	})
}

// StatusResponse reports transfer progress.
type StatusResponse struct {
	Session       *store.SessionRecord `json:"session"`
	ExpectedParts int                  `json:"expected_parts"`
	MissingParts  []int                `json:"missing_parts,omitempty"`
	File          *store.FileRecord    `json:"file,omitempty"`
}

// HandleStatus handles GET /v1/uploads/{id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp := StatusResponse{
		Session:       session,
		ExpectedParts: session.ExpectedParts(),
	}
	if session.Status == store.SessionUploading {
		_, missing, err := h.assembler.parts.List(sessionID, session.ExpectedParts())
		if err == nil {
			resp.MissingParts = missing
		}
	}
	if session.StoredFileID != "" {
		if rec, err := h.store.GetFile(r.Context(), session.StoredFileID); err == nil {
			resp.File = rec
		}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// HandleAbort handles DELETE /v1/uploads/{id}.
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := h.assembler.Abort(r.Context(), sessionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}
