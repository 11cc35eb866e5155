package channel

import (
	"context"
	"time"

	"go.uber.org/zap"

	followupApp "github.com/davicafu/logistrack/internal/followup/application"
	"github.com/davicafu/logistrack/shared/events"
)

// JobConsumer procesa los jobs del bus en memoria. No hay reentrega: un
// fallo sólo queda en el log.
type JobConsumer struct {
	jobs       <-chan events.TaskJob
	handler    followupApp.JobHandler
	jobTimeout time.Duration
	log        *zap.Logger
}

func NewJobConsumer(jobs <-chan events.TaskJob, handler followupApp.JobHandler, jobTimeout time.Duration, log *zap.Logger) *JobConsumer {
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Second
	}
	return &JobConsumer{jobs: jobs, handler: handler, jobTimeout: jobTimeout, log: log}
}

// Run termina al cancelar ctx o al cerrarse el canal.
func (c *JobConsumer) Run(ctx context.Context) {
	c.log.Info("🎧 Follow-up worker listening on in-memory bus")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("🛑 Follow-up in-memory consumer stopped")
			return
		case job, ok := <-c.jobs:
			if !ok {
				return
			}
			c.handle(ctx, job)
		}
	}
}

func (c *JobConsumer) handle(ctx context.Context, job events.TaskJob) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.jobTimeout)
	defer cancel()
	res, err := c.handler.Handle(jobCtx, job)
	if err != nil {
		c.log.Error("Follow-up job failed", zap.String("event_id", job.EventID), zap.Error(err))
		return
	}
	c.log.Debug("Follow-up job handled", zap.String("event_id", job.EventID), zap.Stringer("result", res))
}
