package lmstfy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bitleak/lmstfy/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	followupApp "github.com/davicafu/logistrack/internal/followup/application"
	"github.com/davicafu/logistrack/shared/events"
)

// fakeQueue entrega los jobs en orden y después devuelve nil (timeout).
type fakeQueue struct {
	mu    sync.Mutex
	jobs  []*client.Job
	acked []string
}

func (q *fakeQueue) Consume(queue string, ttr, timeout uint32) (*client.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, nil
}

func (q *fakeQueue) Ack(queue, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *fakeQueue) Acked() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type stubHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (h *stubHandler) Handle(ctx context.Context, job events.TaskJob) (followupApp.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, job.EventID)
	if h.fail[job.EventID] {
		return 0, errors.New("ledger unavailable")
	}
	return followupApp.ResultStored, nil
}

func (h *stubHandler) Seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func lmstfyJob(t *testing.T, id, eventID string) *client.Job {
	t.Helper()
	data, err := json.Marshal(events.TaskJob{EventID: eventID, EventType: "order"})
	require.NoError(t, err)
	return &client.Job{ID: id, Queue: "ingested-events", Data: data}
}

func runUntil(t *testing.T, src *JobSource, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(finished)
	}()
	assert.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-finished
}

func TestJobSource_AcksHandledJobs(t *testing.T) {
	// Arrange
	queue := &fakeQueue{jobs: []*client.Job{lmstfyJob(t, "j1", "1-0"), lmstfyJob(t, "j2", "2-0")}}
	handler := &stubHandler{}
	src := NewJobSource(queue, handler, Options{Queue: "ingested-events"}, zap.NewNop())

	// Act
	runUntil(t, src, func() bool { return len(queue.Acked()) == 2 })

	// Assert
	assert.Equal(t, []string{"1-0", "2-0"}, handler.Seen())
	assert.Equal(t, []string{"j1", "j2"}, queue.Acked())
}

func TestJobSource_FailedJobIsNotAcked(t *testing.T) {
	queue := &fakeQueue{jobs: []*client.Job{lmstfyJob(t, "j1", "1-0"), lmstfyJob(t, "j2", "2-0")}}
	handler := &stubHandler{fail: map[string]bool{"1-0": true}}
	src := NewJobSource(queue, handler, Options{Queue: "ingested-events"}, zap.NewNop())

	runUntil(t, src, func() bool { return len(queue.Acked()) == 1 })

	assert.Equal(t, []string{"j2"}, queue.Acked())
}

func TestJobSource_UndecodableJobIsDropped(t *testing.T) {
	queue := &fakeQueue{jobs: []*client.Job{{ID: "j1", Data: []byte("{broken")}}}
	handler := &stubHandler{}
	src := NewJobSource(queue, handler, Options{Queue: "ingested-events"}, zap.NewNop())

	runUntil(t, src, func() bool { return len(queue.Acked()) == 1 })

	assert.Empty(t, handler.Seen())
}
