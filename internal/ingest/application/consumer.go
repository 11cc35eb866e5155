package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
	"github.com/davicafu/logistrack/shared/utils"
)

// Consumer es el bucle secuencial sobre el grupo de consumidores.
type Consumer struct {
	source        ingestDomain.Source
	processor     Processor
	stats         *Stats
	backoff       time.Duration
	maxDeliveries int64
	log           *zap.Logger
}

type ConsumerOption func(*Consumer)

// WithErrorBackoff fija la espera tras un error de transporte.
func WithErrorBackoff(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.backoff = d }
}

// WithMaxDeliveries activa el descarte de mensajes envenenados tras n entregas (0 = nunca).
func WithMaxDeliveries(n int64) ConsumerOption {
	return func(c *Consumer) { c.maxDeliveries = n }
}

func NewConsumer(source ingestDomain.Source, processor Processor, stats *Stats, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	if stats == nil {
		stats = NewStats()
	}
	c := &Consumer{
		source:    source,
		processor: processor,
		stats:     stats,
		backoff:   5 * time.Second,
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Stats() *Stats {
	return c.stats
}

// Run bloquea hasta que ctx se cancela. La cancelación se comprueba entre
// lotes; un mensaje ya empezado se termina con un contexto sin cancelación.
func (c *Consumer) Run(ctx context.Context) error {
	err := utils.Retry(ctx, 0, c.backoff, func() error {
		err := c.source.EnsureGroup(ctx)
		if err != nil {
			c.stats.TransportErrors.Inc()
			c.log.Warn("⚠️ Could not ensure consumer group, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	c.log.Info("🎧 Consumer started")

	for {
		if ctx.Err() != nil {
			c.log.Info("🛑 Consumer stopped")
			return nil
		}

		msgs, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.stats.TransportErrors.Inc()
			c.log.Error("Error reading from stream", zap.Error(err), zap.Duration("backoff", c.backoff))
			sleep(ctx, c.backoff)
			continue
		}

		for _, msg := range msgs {
			c.handle(context.WithoutCancel(ctx), msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg ingestDomain.RawMessage) {
	c.stats.Read.Inc()
	log := c.log.With(zap.String("message_id", msg.ID))

	outcome, err := c.processor.Process(ctx, msg)
	if err != nil {
		c.stats.Failed.Inc()
		log.Error("Error processing message, leaving it pending", zap.Error(err))
		c.maybeDeadLetter(ctx, msg, err, log)
		return
	}

	switch outcome {
	case OutcomeDuplicate:
		c.stats.Duplicates.Inc()
	default:
		c.stats.Applied.Inc()
	}
	c.ack(ctx, msg.ID, log)
}

// maybeDeadLetter sólo actúa sobre errores que ningún reintento puede arreglar.
func (c *Consumer) maybeDeadLetter(ctx context.Context, msg ingestDomain.RawMessage, cause error, log *zap.Logger) {
	if c.maxDeliveries <= 0 || !ingestDomain.IsPoison(cause) {
		return
	}
	n, err := c.source.Deliveries(ctx, msg.ID)
	if err != nil {
		c.stats.TransportErrors.Inc()
		log.Warn("Could not read delivery count", zap.Error(err))
		return
	}
	if n < c.maxDeliveries {
		return
	}
	if err := c.source.DeadLetter(ctx, msg, cause); err != nil {
		c.stats.TransportErrors.Inc()
		log.Error("Failed to dead-letter message", zap.Error(err))
		return
	}
	c.stats.DeadLettered.Inc()
	log.Warn("☠️ Message dead-lettered", zap.Int64("deliveries", n), zap.Error(cause))
	c.ack(ctx, msg.ID, log)
}

func (c *Consumer) ack(ctx context.Context, id string, log *zap.Logger) {
	if err := c.source.Ack(ctx, id); err != nil {
		c.stats.TransportErrors.Inc()
		log.Error("Failed to ack message", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
