package domain

import (
	"context"
	"errors"
	"fmt"

	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
)

// RawMessage es una entrada del log ya normalizada a texto por el adapter.
type RawMessage struct {
	ID     string
	Fields map[string]string
}

// Source es el puerto del log de eventos con grupos de consumidores.
type Source interface {
	// EnsureGroup crea el grupo si no existe; que ya exista no es un error.
	EnsureGroup(ctx context.Context) error
	// Read devuelve el siguiente lote (posiblemente vacío) asignado a este consumidor.
	Read(ctx context.Context) ([]RawMessage, error)
	Ack(ctx context.Context, id string) error
	// Deliveries devuelve cuántas veces se ha entregado el mensaje pendiente.
	Deliveries(ctx context.Context, id string) (int64, error)
	// DeadLetter copia el mensaje al stream de descartes junto con la causa.
	DeadLetter(ctx context.Context, msg RawMessage, cause error) error
}

// ErrUnsupportedEvent indica un tipo de evento sin handler registrado.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// DecodeError indica un mensaje cuyo sobre no se puede interpretar.
type DecodeError struct {
	MessageID string
	Reason    string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode message %s: %s: %v", e.MessageID, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode message %s: %s", e.MessageID, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError envuelve un fallo del log (red, Redis caído...).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsPoison indica si reintentar el mensaje nunca tendrá éxito.
func IsPoison(err error) bool {
	var decodeErr *DecodeError
	var validationErr *orderDomain.ValidationError
	return errors.As(err, &decodeErr) ||
		errors.As(err, &validationErr) ||
		errors.Is(err, ErrUnsupportedEvent)
}
