package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
	"github.com/davicafu/logistrack/shared/events"
	sharedBus "github.com/davicafu/logistrack/shared/platform/bus"
)

// Outcome es el resultado de procesar un mensaje sin error.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
)

func (o Outcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate"
	}
	return "applied"
}

// Decoder extrae el evento de una entrada del log.
type Decoder interface {
	Decode(msg ingestDomain.RawMessage) (events.Event, error)
}

// Handler aplica un tipo de evento dentro de la transacción. El callback
// devuelto (puede ser nil) se ejecuta sólo tras el commit.
type Handler interface {
	Apply(ctx context.Context, tx orderDomain.Tx, evt events.Event) (func(), error)
}

// Processor es lo que el bucle del consumidor necesita del pipeline.
type Processor interface {
	Process(ctx context.Context, msg ingestDomain.RawMessage) (Outcome, error)
}

// errDuplicate fuerza el rollback cuando otro consumidor ganó la carrera del ledger.
var errDuplicate = errors.New("event already recorded")

// Pipeline implementa decode → dedup → transacción → dispatch para un mensaje.
type Pipeline struct {
	decoder    Decoder
	store      orderDomain.Store
	dispatcher sharedBus.Dispatcher
	handlers   map[string]Handler
	stats      *Stats
	log        *zap.Logger
}

var _ Processor = (*Pipeline)(nil)

// NewPipeline admite dispatcher nil (sin cola secundaria).
func NewPipeline(decoder Decoder, store orderDomain.Store, dispatcher sharedBus.Dispatcher, stats *Stats, log *zap.Logger) *Pipeline {
	if stats == nil {
		stats = NewStats()
	}
	return &Pipeline{
		decoder:    decoder,
		store:      store,
		dispatcher: dispatcher,
		handlers:   make(map[string]Handler),
		stats:      stats,
		log:        log,
	}
}

// Register asocia h a cada uno de los tipos de evento.
func (p *Pipeline) Register(h Handler, eventTypes ...string) *Pipeline {
	for _, t := range eventTypes {
		p.handlers[t] = h
	}
	return p
}

func (p *Pipeline) Process(ctx context.Context, msg ingestDomain.RawMessage) (Outcome, error) {
	evt, err := p.decoder.Decode(msg)
	if err != nil {
		return 0, err
	}
	log := p.log.With(zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))

	handler, ok := p.handlers[evt.Type]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ingestDomain.ErrUnsupportedEvent, evt.Type)
	}

	exists, err := p.store.Ledger().Exists(ctx, evt.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to check ledger: %w", err)
	}
	if exists {
		log.Info("Event already processed, skipping apply")
		p.dispatch(ctx, evt, log)
		return OutcomeDuplicate, nil
	}

	rec, err := sharedDomain.NewLedgerRecord(evt.ID, evt.Type, evt.Payload)
	if err != nil {
		return 0, err
	}

	var afterCommit func()
	err = p.store.WithinTx(ctx, func(ctx context.Context, tx orderDomain.Tx) error {
		// El ledger va primero: un duplicado concurrente se bloquea o choca aquí
		// antes de tocar ninguna entidad.
		inserted, err := tx.RecordEvent(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}
		afterCommit, err = handler.Apply(ctx, tx, evt)
		return err
	})
	if errors.Is(err, errDuplicate) {
		log.Info("Event recorded concurrently by another consumer, skipping apply")
		p.dispatch(ctx, evt, log)
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return 0, err
	}

	if afterCommit != nil {
		afterCommit()
	}
	p.dispatch(ctx, evt, log)

	log.Info("Event applied")
	return OutcomeApplied, nil
}

// dispatch nunca falla el mensaje: el cambio ya está confirmado. También se
// llama para duplicados, por si la entrega anterior murió entre commit y
// dispatch; el ledger de followup descarta el job repetido.
func (p *Pipeline) dispatch(ctx context.Context, evt events.Event, log *zap.Logger) {
	if p.dispatcher == nil {
		return
	}
	if err := p.dispatcher.Dispatch(ctx, events.NewTaskJob(evt)); err != nil {
		p.stats.DispatchFailures.Inc()
		log.Warn("Failed to dispatch follow-up task", zap.Error(err))
	}
}
