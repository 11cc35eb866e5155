package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	followupDomain "github.com/davicafu/logistrack/internal/followup/domain"
	"github.com/davicafu/logistrack/shared/events"
)

const createEventLog = `
CREATE TABLE IF NOT EXISTS ingested_events (
	event_id      String,
	event_type    LowCardinality(String),
	payload       String,
	dispatched_at DateTime64(3, 'UTC'),
	event_time    DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (event_type, event_time)`

// EventLog es el sink analítico append-only de los jobs ya aplicados.
type EventLog struct {
	db *sql.DB
}

// NewEventLog abre la conexión y comprueba que ClickHouse responde.
func NewEventLog(ctx context.Context, addr, dbName string) (*EventLog, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return &EventLog{db: conn}, nil
}

func NewEventLogFromDB(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) InitSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createEventLog); err != nil {
		return fmt.Errorf("failed to create ingested_events: %w", err)
	}
	return nil
}

func (l *EventLog) Append(ctx context.Context, job events.TaskJob) error {
	return l.AppendBatch(ctx, []events.TaskJob{job})
}

// AppendBatch inserta los jobs en un único lote; ClickHouse penaliza las
// inserciones fila a fila.
func (l *EventLog) AppendBatch(ctx context.Context, jobs []events.TaskJob) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO ingested_events (event_id, event_type, payload, dispatched_at, event_time)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	eventTime := time.Now().UTC()
	for _, job := range jobs {
		payload, err := json.Marshal(job.Payload)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal payload for event %s: %w", job.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx, job.EventID, job.EventType, string(payload), job.DispatchedAt, eventTime); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", job.EventID, err)
		}
	}
	return tx.Commit()
}

func (l *EventLog) Close() error {
	return l.db.Close()
}

// Verificación en tiempo de compilación.
var _ followupDomain.AnalyticsSink = (*EventLog)(nil)
