package jobs

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"payscope/pkg/config"
	"payscope/pkg/httpx"
	"payscope/pkg/store"
)

// Handler exposes background analysis jobs over HTTP.
type Handler struct {
	runner *Runner
}

// NewHandler creates a jobs HTTP handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// StartResponse is returned from the start endpoint. Started is false when
// an existing job made the request a no-op.
type StartResponse struct {
	Job     *store.JobRecord `json:"job"`
	Started bool             `json:"started"`
}

// StatusResponse is the job record with the result payload, if any,
// decoded back into a JSON document.
type StatusResponse struct {
	Job    *store.JobRecord `json:"job"`
	Result json.RawMessage  `json:"result,omitempty"`
}

// HandleStart launches a full-file analysis job.
// POST /v1/files/{id}/analysis
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	rec, started, err := h.runner.Start(r.Context(), fileID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	httpx.RespondJSON(w, status, StartResponse{Job: rec, Started: started})
}

// HandleStatus reports job progress and, once completed, the result.
// GET /v1/files/{id}/analysis
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]

	rec, err := h.runner.Status(r.Context(), fileID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp := StatusResponse{Job: rec}
	if rec.Status == store.JobCompleted && rec.ResultJSON != "" {
		resp.Result = json.RawMessage(rec.ResultJSON)
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// HandleProgressWS handles WebSocket upgrade requests for the progress
// stream. GET /v1/jobs/ws, optionally ?file_id=<id> to follow one job.
func (h *Handler) HandleProgressWS(hub *ProgressHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		c := &client{
			conn:   conn,
			fileID: r.URL.Query().Get("file_id"),
			send:   make(chan []byte, config.WSBroadcastBuffer),
		}
		hub.register <- c
		defer func() { hub.unregister <- c }()

		// The write pump owns the connection's write side, keepalive pings
		// included.
		go c.writePump()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})

		// Read loop handles control frames and detects connection close
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				break
			}
		}
	}
}
