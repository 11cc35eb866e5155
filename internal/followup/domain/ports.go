package domain

import (
	"context"

	"github.com/davicafu/logistrack/shared/events"
)

// AnalyticsSink guarda una copia append-only de cada job aplicado.
type AnalyticsSink interface {
	Append(ctx context.Context, job events.TaskJob) error
}
