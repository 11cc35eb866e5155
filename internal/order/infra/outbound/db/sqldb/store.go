package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

// querier es lo común entre *sql.DB y *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implementa orderDomain.Store sobre database/sql (SQLite o Postgres).
type Store struct {
	db      *sql.DB
	dialect Dialect
	ledger  *LedgerRepo
}

func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, ledger: NewLedgerRepo(db, d)}
}

// Open abre la conexión con el driver del dialecto. SQLite queda limitado a una
// conexión: el motor serializa escrituras y así se evitan errores SQLITE_BUSY.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if d == SQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.DriverName(), err)
	}
	if d == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.DriverName(), err)
	}
	return db, nil
}

// WithinTx ejecuta fn dentro de una transacción. Si fn devuelve error (o
// el commit falla) no queda ningún efecto visible.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orderDomain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &txRepo{q: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ledger() sharedDomain.Ledger {
	return s.ledger
}

// --- Lecturas fuera de transacción ---

// GetOrder devuelve la orden con su conjunto de productos.
func (s *Store) GetOrder(ctx context.Context, id int64) (*orderDomain.Order, error) {
	r := &txRepo{q: s.db, dialect: s.dialect}
	o, err := r.getOrder(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if o.ProductIDs, err = r.orderProducts(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetDriver(ctx context.Context, id int64) (*orderDomain.Driver, error) {
	return (&txRepo{q: s.db, dialect: s.dialect}).getDriver(ctx, id)
}

func (s *Store) GetBlock(ctx context.Context, id int64) (*orderDomain.Block, error) {
	return (&txRepo{q: s.db, dialect: s.dialect}).getBlock(ctx, id)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*orderDomain.Product, error) {
	return (&txRepo{q: s.db, dialect: s.dialect}).getProduct(ctx, id)
}

// Verificación en tiempo de compilación.
var _ orderDomain.Store = (*Store)(nil)
