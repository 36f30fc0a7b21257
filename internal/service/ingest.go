package service

import (
	"context"

	"csgo-tracker/internal/eventlog"
	"csgo-tracker/internal/queue"

	"github.com/rs/zerolog"
)

// IngestService accepts raw snapshot payloads. A snapshot is acknowledged
// once it is durably in the event log; derivation happens asynchronously
// behind the queue.
type IngestService struct {
	log    *eventlog.Log
	queue  *queue.Queue[int64]
	logger zerolog.Logger
}

func NewIngestService(log *eventlog.Log, q *queue.Queue[int64], logger zerolog.Logger) *IngestService {
	return &IngestService{
		log:    log,
		queue:  q,
		logger: logger,
	}
}

// Ingest appends the payload to the event log and notifies the consumer
// with the new sequence. Returns the sequence on success; the payload is
// not parsed or validated here, only persisted. The notification never
// blocks: a full queue surfaces as backpressure immediately.
func (s *IngestService) Ingest(ctx context.Context, payload []byte) (int64, error) {
	seq, err := s.log.Append(ctx, payload)
	if err != nil {
		return 0, err
	}

	if err := s.queue.TryEnqueue(seq); err != nil {
		// The payload is already durable; the consumer will pick it up
		// from the progress marker on the next notification or restart.
		s.logger.Warn().
			Err(err).
			Int64("sequence_id", seq).
			Msg("snapshot logged but consumer notification failed")
		return seq, err
	}
	return seq, nil
}
