package lmstfy

import (
	"context"
	"time"

	"github.com/bitleak/lmstfy/client"
	"go.uber.org/zap"

	followupApp "github.com/davicafu/logistrack/internal/followup/application"
	"github.com/davicafu/logistrack/shared/events"
)

// JobConsumer es el subconjunto de *client.LmstfyClient que usa el worker.
type JobConsumer interface {
	Consume(queue string, ttrSecond, timeoutSecond uint32) (*client.Job, error)
	Ack(queue, jobID string) error
}

var _ JobConsumer = (*client.LmstfyClient)(nil)

type Options struct {
	Queue        string
	TTR          time.Duration // tiempo antes de que lmstfy re-entregue un job sin ack
	PollTimeout  time.Duration
	ErrorBackoff time.Duration
	JobTimeout   time.Duration
}

// JobSource lee jobs de lmstfy y sólo hace ack cuando el worker los procesa.
// Un job sin ack vuelve a la cola al vencer el TTR.
type JobSource struct {
	cli     JobConsumer
	handler followupApp.JobHandler
	opts    Options
	log     *zap.Logger
}

func NewJobSource(cli JobConsumer, handler followupApp.JobHandler, opts Options, log *zap.Logger) *JobSource {
	if opts.TTR <= 0 {
		opts.TTR = 30 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 3 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Second
	}
	return &JobSource{cli: cli, handler: handler, opts: opts, log: log}
}

// Run bloquea hasta que se cancele ctx.
func (s *JobSource) Run(ctx context.Context) {
	s.log.Info("🎧 Follow-up worker listening on lmstfy", zap.String("queue", s.opts.Queue))
	for {
		if ctx.Err() != nil {
			s.log.Info("🛑 Follow-up lmstfy source stopped")
			return
		}
		job, err := s.cli.Consume(s.opts.Queue, uint32(s.opts.TTR.Seconds()), uint32(s.opts.PollTimeout.Seconds()))
		if err != nil {
			s.log.Warn("⚠️ lmstfy consume failed, retrying", zap.Error(err))
			s.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		s.handle(ctx, job)
	}
}

func (s *JobSource) handle(ctx context.Context, job *client.Job) {
	log := s.log.With(zap.String("job_id", job.ID))
	task, err := events.DecodeTaskJob(job.Data)
	if err != nil {
		// Un job ilegible nunca se podrá procesar: se confirma para no reciclarlo.
		log.Error("☠️ Dropping undecodable follow-up job", zap.Error(err))
		s.ack(job, log)
		return
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.JobTimeout)
	defer cancel()
	if _, err := s.handler.Handle(jobCtx, task); err != nil {
		log.Error("Follow-up job failed, leaving it for redelivery", zap.Error(err))
		return
	}
	s.ack(job, log)
}

func (s *JobSource) ack(job *client.Job, log *zap.Logger) {
	if err := s.cli.Ack(s.opts.Queue, job.ID); err != nil {
		log.Warn("⚠️ lmstfy ack failed", zap.Error(err))
	}
}

func (s *JobSource) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.opts.ErrorBackoff):
	}
}
