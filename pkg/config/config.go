package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultDataDir     = "./data/payscope"
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 120 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Upload limits and defaults
const (
	DefaultChunkSize   = 5 * 1024 * 1024        // 5 MiB per part, all but the last
	MaxUploadSize      = 8 * 1024 * 1024 * 1024 // 8 GiB per file
	MaxPartsPerSession = 4096

	// Sessions with no accepted part for this long are swept and failed.
	SessionIdleTTL      = 6 * time.Hour
	SessionSweepEvery   = 15 * time.Minute
	UploadAcceptTimeout = 60 * time.Second
)

// Rate limiting (per client IP, upload endpoints)
const (
	UploadRateLimit = 50 // requests per second
	UploadRateBurst = 100
)

// Aggregation engine
const (
	// Sampling endpoints stop reading once this many rows are retained.
	MaxSampledRows = 200000

	// Background jobs persist a progress checkpoint every this many rows.
	ProgressCheckpointRows = 50000

	AnalyticsQueryTimeout = 5 * time.Minute
)

// RCA thresholds. Consumers are calibrated to these exact values.
const (
	FailureShareSpikePts    = 5.0 // VOLUME_SPIKE: failure share grew by more than this
	FailureRateDegradedPts  = 2.0 // SR_DEGRADATION: failure rate of total grew by more than this
	FailureExplosionRatio   = 1.5 // FAILURE_EXPLOSION: failure count grew beyond this multiple
	FailedRateSpikePts      = 1.0 // primary cause FAILURE_SPIKE trigger
	MaxInsights             = 10
	MaxEvidenceReasons      = 3
	ProblematicMinRetries   = 10
	ProblematicMaxRetrySRPt = 1.0
	HighValuePercentile     = 0.75
)

// WebSocket configuration (job progress streaming)
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Badger memory defaults
const (
	DefaultMaxMemoryMB = 48
)
