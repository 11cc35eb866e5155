package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	followupDomain "github.com/davicafu/logistrack/internal/followup/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
	"github.com/davicafu/logistrack/shared/events"
)

type Result int

const (
	ResultStored Result = iota
	ResultAlreadyStored
	ResultRaceHandled
)

func (r Result) String() string {
	switch r {
	case ResultAlreadyStored:
		return "already_stored"
	case ResultRaceHandled:
		return "race_handled"
	default:
		return "stored"
	}
}

// JobHandler es lo que necesitan las fuentes de jobs.
type JobHandler interface {
	Handle(ctx context.Context, job events.TaskJob) (Result, error)
}

// Worker procesa los jobs de seguimiento de forma idempotente: un job
// duplicado (re-dispatch tras un fallo antes del ack) no se registra dos veces.
type Worker struct {
	ledger sharedDomain.Ledger
	sink   followupDomain.AnalyticsSink
	log    *zap.Logger
}

var _ JobHandler = (*Worker)(nil)

// NewWorker admite sink nil (analítica desactivada).
func NewWorker(ledger sharedDomain.Ledger, sink followupDomain.AnalyticsSink, log *zap.Logger) *Worker {
	return &Worker{ledger: ledger, sink: sink, log: log}
}

func (w *Worker) Handle(ctx context.Context, job events.TaskJob) (Result, error) {
	log := w.log.With(zap.String("event_id", job.EventID), zap.String("event_type", job.EventType))

	exists, err := w.ledger.Exists(ctx, job.EventID)
	if err != nil {
		return 0, fmt.Errorf("failed to check follow-up ledger: %w", err)
	}
	if exists {
		log.Info("Follow-up job already stored")
		return ResultAlreadyStored, nil
	}

	rec, err := sharedDomain.NewLedgerRecord(job.EventID, job.EventType, job.Payload)
	if err != nil {
		return 0, err
	}
	inserted, err := w.ledger.Record(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to record follow-up job: %w", err)
	}
	if !inserted {
		log.Info("Follow-up job stored concurrently, race handled")
		return ResultRaceHandled, nil
	}

	if w.sink != nil {
		if err := w.sink.Append(ctx, job); err != nil {
			log.Warn("⚠️ Failed to append job to analytics", zap.Error(err))
		}
	}
	log.Info("✅ Follow-up job stored")
	return ResultStored, nil
}
