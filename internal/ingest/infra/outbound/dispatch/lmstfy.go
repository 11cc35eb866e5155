package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bitleak/lmstfy/client"
	"go.uber.org/zap"

	"github.com/davicafu/logistrack/shared/events"
	sharedBus "github.com/davicafu/logistrack/shared/platform/bus"
)

// lmstfyPublisher es el subconjunto de *client.LmstfyClient que usamos.
type lmstfyPublisher interface {
	Publish(queue string, data []byte, ttlSecond uint32, tries uint16, delaySecond uint32) (string, error)
}

var _ lmstfyPublisher = (*client.LmstfyClient)(nil)

// LmstfyOptions son los parámetros de publicación de cada job.
type LmstfyOptions struct {
	Queue string
	TTL   uint32 // segundos; 0 = sin caducidad
	Tries uint16
	Delay uint32
}

// LmstfyDispatcher publica los jobs de seguimiento en una cola lmstfy.
type LmstfyDispatcher struct {
	cli  lmstfyPublisher
	opts LmstfyOptions
	log  *zap.Logger
}

var _ sharedBus.Dispatcher = (*LmstfyDispatcher)(nil)

func NewLmstfyDispatcher(cli lmstfyPublisher, opts LmstfyOptions, log *zap.Logger) *LmstfyDispatcher {
	if opts.Tries == 0 {
		opts.Tries = 1
	}
	return &LmstfyDispatcher{cli: cli, opts: opts, log: log}
}

// NewLmstfyClient crea el cliente HTTP oficial.
func NewLmstfyClient(host string, port int, namespace, token string) *client.LmstfyClient {
	return client.NewLmstfyClient(host, port, namespace, token)
}

func (d *LmstfyDispatcher) Dispatch(ctx context.Context, job events.TaskJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal task job: %w", err)
	}
	jobID, err := d.cli.Publish(d.opts.Queue, data, d.opts.TTL, d.opts.Tries, d.opts.Delay)
	if err != nil {
		return fmt.Errorf("lmstfy publish failed: %w", err)
	}
	d.log.Debug("Task job published",
		zap.String("queue", d.opts.Queue),
		zap.String("job_id", jobID),
		zap.String("event_id", job.EventID))
	return nil
}
