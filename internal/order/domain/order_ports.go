package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

var ErrOrderNotFound = errors.New("order not found")

// ValidationError indica un payload bien formado pero incompleto o con tipos
// incorrectos. No se reintenta con éxito: el mensaje queda sin confirmar.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields in payload: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields in payload: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) invalid(field string, err error) {
	e.Invalid = append(e.Invalid, fmt.Sprintf("%s (%v)", field, err))
}

// --- Unidad de trabajo ---

// Tx expone las operaciones primitivas dentro de una transacción del store.
// Todas las escrituras de un evento (ledger + entidades) pasan por la misma Tx.
type Tx interface {
	// RecordEvent inserta el registro del ledger; false si ya existía.
	RecordEvent(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error)

	GetOrCreateDriver(ctx context.Context, placeholder Driver) (*Driver, error)
	UpdateDriver(ctx context.Context, d *Driver) error
	GetOrCreateBlock(ctx context.Context, placeholder Block) (*Block, error)
	// BlockNameOwner devuelve el id del bloque que usa name, si alguno.
	BlockNameOwner(ctx context.Context, name string) (int64, bool, error)
	UpdateBlock(ctx context.Context, b *Block) error
	GetOrCreateProduct(ctx context.Context, placeholder Product) (*Product, error)

	// GetOrderForUpdate bloquea la fila (cuando el motor lo soporta) o devuelve ErrOrderNotFound.
	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	ReplaceOrderProducts(ctx context.Context, orderID int64, productIDs []int64) error
}

// Store abre transacciones y expone el ledger fuera de ellas.
type Store interface {
	// WithinTx ejecuta fn en una transacción; cualquier error hace rollback.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ledger() sharedDomain.Ledger
}

// OrderCacheKeyByID es la clave que lee la API de consulta (fuera de este proceso).
func OrderCacheKeyByID(id int64) string {
	return fmt.Sprintf("order:id:%d", id)
}
