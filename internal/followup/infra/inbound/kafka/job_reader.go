package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	followupApp "github.com/davicafu/logistrack/internal/followup/application"
	"github.com/davicafu/logistrack/shared/events"
)

// messageReader es el subconjunto de *kafka.Reader que usamos.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

var _ messageReader = (*kafka.Reader)(nil)

// JobReader es el "oído" del worker de seguimiento en Kafka. A diferencia de
// ReadMessage, el offset sólo se confirma cuando el job se ha procesado.
type JobReader struct {
	reader     messageReader
	handler    followupApp.JobHandler
	backoff    time.Duration
	jobTimeout time.Duration
	log        *zap.Logger
}

func NewJobReader(reader messageReader, handler followupApp.JobHandler, jobTimeout time.Duration, log *zap.Logger) *JobReader {
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Second
	}
	return &JobReader{reader: reader, handler: handler, backoff: time.Second, jobTimeout: jobTimeout, log: log}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// Run bloquea hasta que se cancele ctx.
func (r *JobReader) Run(ctx context.Context) {
	r.log.Info("🎧 Follow-up worker listening on Kafka")
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("🛑 Follow-up Kafka reader stopped")
				return
			}
			r.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
			r.sleep(ctx)
			continue
		}
		if !r.handle(ctx, msg) {
			// Sin commit: el mismo offset se relee tras el backoff.
			r.sleep(ctx)
			continue
		}
		if err := r.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			r.log.Warn("⚠️ Kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle devuelve true si el offset puede confirmarse.
func (r *JobReader) handle(ctx context.Context, msg kafka.Message) bool {
	log := r.log.With(zap.String("key", string(msg.Key)), zap.Int64("offset", msg.Offset))
	job, err := events.DecodeTaskJob(msg.Value)
	if err != nil {
		log.Error("☠️ Skipping undecodable follow-up job", zap.Error(err))
		return true
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.jobTimeout)
	defer cancel()
	if _, err := r.handler.Handle(jobCtx, job); err != nil {
		log.Error("Follow-up job failed", zap.Error(err))
		return false
	}
	return true
}

func (r *JobReader) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.backoff):
	}
}
