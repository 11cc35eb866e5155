package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LedgerRecord marca un evento como completamente aplicado.
// Existe como mucho un registro por EventID y nunca se actualiza ni se borra.
type LedgerRecord struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"payload"` // JSON
	ReceivedAt time.Time `json:"received_at"`
}

// Ledger es el registro de deduplicación (outbox de entrada).
type Ledger interface {
	// Exists devuelve true si ya hay un registro confirmado para eventID.
	Exists(ctx context.Context, eventID string) (bool, error)
	// Record inserta el registro. Un conflicto de unicidad devuelve (false, nil).
	Record(ctx context.Context, rec LedgerRecord) (bool, error)
}

// NewLedgerRecord serializa el payload y fija ReceivedAt en UTC.
func NewLedgerRecord(eventID, eventType string, payload map[string]interface{}) (LedgerRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return LedgerRecord{}, fmt.Errorf("failed to marshal ledger payload: %w", err)
	}
	return LedgerRecord{
		EventID:    eventID,
		EventType:  eventType,
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
