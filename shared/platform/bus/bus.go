package bus

import (
	"context"

	"github.com/davicafu/logistrack/shared/events"
)

type Keyer interface {
	PartitionKey() string
}

// Dispatcher entrega un job a la cola asíncrona secundaria (fire-and-forget).
// La semántica de cola/topic y el formato del mensaje los deciden los adapters.
type Dispatcher interface {
	Dispatch(ctx context.Context, job events.TaskJob) error
}

// Verificación estática
var _ Keyer = events.TaskJob{}
