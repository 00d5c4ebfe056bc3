package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"payscope/pkg/config"
	"payscope/pkg/server"
)

func main() {
	log.Println("Starting PayScope server...")

	cfg := server.LoadConfig()
	log.Printf("Data directory: %s", cfg.DataDir)

	st, err := server.InitializeStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	defer st.Close()

	assembler, uploadHandler, analyticsHandler, runner, jobsHandler, hub, err := server.InitializeHandlers(st, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize handlers: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("WebSocket hub started for job progress streaming")

	stopSweeper := make(chan bool)
	wg.Add(1)
	go server.RunSessionSweeper(assembler, stopSweeper, &wg)

	stopGC := make(chan bool)
	wg.Add(1)
	go server.RunBadgerGC(st, stopGC, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, st, uploadHandler, analyticsHandler, jobsHandler, hub, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Port)
		log.Println("API endpoints:")
		log.Println("   POST /v1/uploads                    - Create upload session")
		log.Println("   PUT  /v1/uploads/{id}/parts/{index} - Upload one part")
		log.Println("   POST /v1/uploads/{id}/complete      - Assemble the file")
		log.Println("   POST /v1/files/{id}/overview        - Sampled SR analytics")
		log.Println("   POST /v1/files/{id}/rca             - Period-over-period RCA")
		log.Println("   POST /v1/files/{id}/analysis        - Full-file analysis job")
		log.Println("Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")

	// Cancel context before wg.Wait() so background goroutines can exit
	cancel()
	close(stopSweeper)
	close(stopGC)
	runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("PayScope server exited cleanly")
}
