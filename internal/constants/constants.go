package constants

import "time"

const (
	// ValidationInterval is the minimum time between disk re-scans once the
	// cache is initialized. Inside the interval SyncFromDisk is a no-op.
	ValidationInterval = 5 * time.Minute

	DecodeTimeout      = 30 * time.Second
	ExternalAPITimeout = 10 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	// ProgressReportEvery controls how often the pipeline emits aggregate
	// throughput/ETA lines during a batch.
	ProgressReportEvery = 25

	ReplayExtension = ".SC2Replay"
)

const (
	ShutdownTimeout = 5 * time.Second
	LobbyPollPeriod = 2 * time.Second
)

const (
	MatchHistoryLimit = 20
	BuildOrderLimit   = 60
)
