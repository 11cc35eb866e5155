package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/davicafu/logistrack/shared/events"
	sharedBus "github.com/davicafu/logistrack/shared/platform/bus"
)

// ErrSubscriberFull se devuelve si algún suscriptor no tenía hueco para el job.
var ErrSubscriberFull = errors.New("in-memory bus subscriber is full")

// InMemoryBus reparte los jobs entre canales de Go; sirve para ejecuciones
// locales donde el worker de seguimiento vive en el mismo proceso.
type InMemoryBus struct {
	subscribers []chan events.TaskJob
	mu          sync.RWMutex
	closed      bool
}

var _ sharedBus.Dispatcher = (*InMemoryBus)(nil)

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Dispatch no bloquea: si un suscriptor está lleno el job se pierde para él.
func (b *InMemoryBus) Dispatch(ctx context.Context, job events.TaskJob) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("in-memory bus closed")
	}

	var dropped bool
	for _, sub := range b.subscribers {
		select {
		case sub <- job:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberFull
	}
	return nil
}

// Subscribe registra un nuevo oyente con el buffer indicado.
func (b *InMemoryBus) Subscribe(bufferSize int) <-chan events.TaskJob {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(chan events.TaskJob, bufferSize)
	b.subscribers = append(b.subscribers, sub)
	return sub
}

// Close cierra los canales de los suscriptores; Dispatch falla a partir de aquí.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub)
	}
}
