package constants

import "time"

const (
	RequestTimeout = 30 * time.Second
	IngestTimeout  = 10 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// DefaultQueueCapacity bounds the in-process snapshot queue. Enqueues
	// past this bound surface backpressure to the ingestion caller.
	DefaultQueueCapacity = 256
)

const (
	// ExhaustiveSearchThreshold is the largest candidate pool for which
	// matchmaking enumerates every team partition. Above it, the engine
	// falls back to bounded local search.
	ExhaustiveSearchThreshold = 12
	DefaultSearchBudget       = 20000
	DefaultSuggestionLimit    = 10
)
