package server

import (
	"context"
	"log"
	"sync"
	"time"

	"payscope/pkg/config"
	"payscope/pkg/store"
	"payscope/pkg/store/badger"
	"payscope/pkg/upload"
)

// RunSessionSweeper periodically fails idle upload sessions and removes
// their part files.
func RunSessionSweeper(assembler *upload.Assembler, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.SessionSweepEvery)
	defer ticker.Stop()

	// Run once on startup to clear sessions orphaned by a previous crash
	go func() {
		log.Println("Running initial sweep of idle upload sessions...")
		assembler.SweepIdle(context.Background(), config.SessionIdleTTL)
	}()

	for {
		select {
		case <-ticker.C:
			assembler.SweepIdle(context.Background(), config.SessionIdleTTL)
		case <-stop:
			log.Println("Stopping upload session sweeper")
			return
		}
	}
}

// RunBadgerGC runs BadgerDB garbage collection periodically to reclaim disk
// space. BadgerDB uses LSM trees which accumulate deleted data in the value
// log, so GC is needed to prevent unbounded disk growth.
func RunBadgerGC(st store.Store, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	badgerStore, ok := st.(*badger.Store)
	if !ok {
		log.Println("Record store is not BadgerDB, skipping GC")
		return
	}

	log.Println("BadgerDB GC scheduler started (runs every 10m)")

	for {
		select {
		case <-ticker.C:
			start := time.Now()

			// RunValueLogGC runs until no more garbage can be collected.
			// One iteration per tick to avoid blocking.
			err := badgerStore.RunGC(0.5)
			if err != nil {
				// Not an error if no GC was needed
				log.Printf("GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			} else {
				log.Printf("GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			}
		case <-stop:
			log.Println("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
