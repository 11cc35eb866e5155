package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

const (
	EventLedgerTable    = "event_ledger"
	FollowupLedgerTable = "followup_ledger"
)

// LedgerRepo implementa sharedDomain.Ledger sobre una tabla con el esquema de event_ledger.
type LedgerRepo struct {
	q       querier
	dialect Dialect
	table   string
}

func NewLedgerRepo(q querier, d Dialect) *LedgerRepo {
	return &LedgerRepo{q: q, dialect: d, table: EventLedgerTable}
}

// NewFollowupLedger devuelve el ledger propio del worker de seguimiento.
func NewFollowupLedger(db *sql.DB, d Dialect) *LedgerRepo {
	return &LedgerRepo{q: db, dialect: d, table: FollowupLedgerTable}
}

func (r *LedgerRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT COUNT(1) FROM `+r.table+` WHERE event_id = ?`), eventID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return n > 0, nil
}

// Record inserta el registro; si el event_id ya existe no toca nada y devuelve false.
func (r *LedgerRepo) Record(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO `+r.table+` (event_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`),
		rec.EventID, rec.EventType, string(rec.Payload), rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	return rows == 1, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.Ledger = (*LedgerRepo)(nil)
