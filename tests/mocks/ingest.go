package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
	"github.com/davicafu/logistrack/shared/events"
)

// MockSource simula el log de eventos.
type MockSource struct {
	mock.Mock
}

var _ ingestDomain.Source = (*MockSource)(nil)

func (m *MockSource) EnsureGroup(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSource) Read(ctx context.Context) ([]ingestDomain.RawMessage, error) {
	args := m.Called(ctx)
	msgs, _ := args.Get(0).([]ingestDomain.RawMessage)
	return msgs, args.Error(1)
}

func (m *MockSource) Ack(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSource) Deliveries(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSource) DeadLetter(ctx context.Context, msg ingestDomain.RawMessage, cause error) error {
	args := m.Called(ctx, msg, cause)
	return args.Error(0)
}

// MockDispatcher simula la cola secundaria.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, job events.TaskJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockLedger simula un ledger externo (follow-up worker).
type MockLedger struct {
	mock.Mock
}

var _ sharedDomain.Ledger = (*MockLedger)(nil)

func (m *MockLedger) Exists(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Record(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

// RecordingDispatcher guarda los jobs recibidos. Un puntero nil descarta los jobs.
type RecordingDispatcher struct {
	mu   sync.Mutex
	Jobs []events.TaskJob
	Err  error
}

func (d *RecordingDispatcher) Dispatch(ctx context.Context, job events.TaskJob) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Jobs = append(d.Jobs, job)
	return nil
}

func (d *RecordingDispatcher) Count() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Jobs)
}
