package server

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"payscope/pkg/analytics"
	"payscope/pkg/config"
	"payscope/pkg/jobs"
	"payscope/pkg/store"
	"payscope/pkg/store/badger"
	"payscope/pkg/upload"
)

// Config holds server configuration.
type Config struct {
	DataDir     string
	Port        string
	MaxMemoryMB int64
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	maxMemoryMB := getEnvInt64("PAYSCOPE_MAX_MEMORY_MB", config.DefaultMaxMemoryMB)
	port := getPort()

	dataDir := os.Getenv("PAYSCOPE_DATA_DIR")
	if dataDir == "" {
		dataDir = config.DefaultDataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	return Config{
		DataDir:     dataDir,
		Port:        port,
		MaxMemoryMB: maxMemoryMB,
	}
}

// InitializeStore opens the BadgerDB record store under <dataDir>/meta.
func InitializeStore(cfg Config) (store.Store, error) {
	log.Println("Initializing BadgerDB record store...")
	st, err := badger.New(badger.Config{
		Path:        filepath.Join(cfg.DataDir, "meta"),
		MaxMemoryMB: cfg.MaxMemoryMB,
	})
	if err != nil {
		return nil, err
	}
	log.Println("BadgerDB record store initialized successfully")
	return st, nil
}

// InitializeHandlers creates the upload assembler and all request handlers.
func InitializeHandlers(st store.Store, cfg Config) (
	*upload.Assembler,
	*upload.Handler,
	*analytics.Handler,
	*jobs.Runner,
	*jobs.Handler,
	*jobs.ProgressHub,
	error,
) {
	assembler, err := upload.New(st, cfg.DataDir)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	log.Println("Upload assembler created (resumable chunked transfers)")

	uploadHandler := upload.NewHandler(assembler, st)
	analyticsHandler := analytics.NewHandler(assembler)
	log.Println("Analytics handlers created (views, RCA, sampling)")

	hub := jobs.NewProgressHub()
	runner := jobs.NewRunner(st, assembler, hub)
	jobsHandler := jobs.NewHandler(runner)
	log.Println("Job runner created for full-file analysis")

	return assembler, uploadHandler, analyticsHandler, runner, jobsHandler, hub, nil
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getPort gets the server port from PORT environment variable or returns default.
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}
