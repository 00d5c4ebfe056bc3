package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"payscope/pkg/analytics"
	"payscope/pkg/config"
	"payscope/pkg/httpx"
	"payscope/pkg/jobs"
	"payscope/pkg/store"
	"payscope/pkg/upload"
)

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth returns service health status.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: "1.0.0",
		Uptime:  time.Since(startTime).String(),
	})
}

// handleListSessions returns all upload sessions, newest first.
func handleListSessions(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := st.ListSessions(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(
	router *mux.Router,
	st store.Store,
	uploadHandler *upload.Handler,
	analyticsHandler *analytics.Handler,
	jobsHandler *jobs.Handler,
	hub *jobs.ProgressHub,
	port string,
) {
	router.Use(httpx.CORSMiddleware(port))
	router.Use(httpx.LogRequests)

	api := router.PathPrefix("/v1").Subrouter()

	// Chunked uploads. Part writes are rate limited per client IP.
	limiter := httpx.NewRateLimiter(config.UploadRateLimit, config.UploadRateBurst)
	uploads := api.PathPrefix("/uploads").Subrouter()
	uploads.Use(httpx.RateLimit(limiter))
	uploads.HandleFunc("", uploadHandler.HandleCreateSession).Methods("POST")
	uploads.HandleFunc("", handleListSessions(st)).Methods("GET")
	uploads.HandleFunc("/{id}", uploadHandler.HandleStatus).Methods("GET")
	uploads.HandleFunc("/{id}", uploadHandler.HandleAbort).Methods("DELETE")
	uploads.HandleFunc("/{id}/parts/{index}", uploadHandler.HandleAcceptPart).Methods("PUT")
	uploads.HandleFunc("/{id}/complete", uploadHandler.HandleComplete).Methods("POST")

	// Sampled analytics over assembled files
	api.HandleFunc("/files/{id}/overview", analyticsHandler.HandleView("overview")).Methods("POST")
	api.HandleFunc("/files/{id}/upi", analyticsHandler.HandleView("upi")).Methods("POST")
	api.HandleFunc("/files/{id}/cards", analyticsHandler.HandleView("cards")).Methods("POST")
	api.HandleFunc("/files/{id}/netbanking", analyticsHandler.HandleView("netbanking")).Methods("POST")
	api.HandleFunc("/files/{id}/rca", analyticsHandler.HandleRCA).Methods("POST")
	api.HandleFunc("/files/{id}/sample", analyticsHandler.HandleSample).Methods("POST")

	// Background full-file analysis
	api.HandleFunc("/files/{id}/analysis", jobsHandler.HandleStart).Methods("POST")
	api.HandleFunc("/files/{id}/analysis", jobsHandler.HandleStatus).Methods("GET")
	api.HandleFunc("/jobs/ws", jobsHandler.HandleProgressWS(hub)).Methods("GET")

	api.HandleFunc("/health", handleHealth).Methods("GET")
}
