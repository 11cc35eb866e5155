package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

// txRepo implementa orderDomain.Tx. Con q = *sql.Tx todas las escrituras
// comparten transacción; con q = *sql.DB sólo se usan las lecturas.
type txRepo struct {
	q       querier
	dialect Dialect
}

func (r *txRepo) RecordEvent(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	return NewLedgerRepo(r.q, r.dialect).Record(ctx, rec)
}

// ------------------ Conductores ------------------

func (r *txRepo) GetOrCreateDriver(ctx context.Context, p orderDomain.Driver) (*orderDomain.Driver, error) {
	now := time.Now().UTC()
	if _, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO drivers (id, name, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		p.ID, p.Name, p.Email, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert driver: %w", err)
	}
	return r.getDriver(ctx, p.ID)
}

func (r *txRepo) UpdateDriver(ctx context.Context, d *orderDomain.Driver) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`UPDATE drivers SET name=?, email=?, updated_at=? WHERE id=?`),
		d.Name, d.Email, d.UpdatedAt, d.ID,
	)
	return err
}

func (r *txRepo) getDriver(ctx context.Context, id int64) (*orderDomain.Driver, error) {
	var d orderDomain.Driver
	var email sql.NullString
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT id, name, email, created_at, updated_at FROM drivers WHERE id = ?`), id,
	).Scan(&d.ID, &d.Name, &email, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load driver %d: %w", id, err)
	}
	if email.Valid {
		d.Email = &email.String
	}
	return &d, nil
}

// ------------------ Bloques ------------------

func (r *txRepo) GetOrCreateBlock(ctx context.Context, p orderDomain.Block) (*orderDomain.Block, error) {
	now := time.Now().UTC()
	if _, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO blocks (id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		p.ID, p.Name, p.Description, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert block: %w", err)
	}
	return r.getBlock(ctx, p.ID)
}

func (r *txRepo) UpdateBlock(ctx context.Context, b *orderDomain.Block) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`UPDATE blocks SET name=?, description=?, updated_at=? WHERE id=?`),
		b.Name, b.Description, b.UpdatedAt, b.ID,
	)
	return err
}

func (r *txRepo) getBlock(ctx context.Context, id int64) (*orderDomain.Block, error) {
	var b orderDomain.Block
	var desc sql.NullString
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT id, name, description, created_at, updated_at FROM blocks WHERE id = ?`), id,
	).Scan(&b.ID, &b.Name, &desc, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load block %d: %w", id, err)
	}
	b.Description = desc.String
	return &b, nil
}

func (r *txRepo) BlockNameOwner(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, r.dialect.rebind(`SELECT id FROM blocks WHERE name = ?`), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up block name: %w", err)
	}
	return id, true, nil
}

// ------------------ Productos ------------------

func (r *txRepo) GetOrCreateProduct(ctx context.Context, p orderDomain.Product) (*orderDomain.Product, error) {
	now := time.Now().UTC()
	if _, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO products (id, name, sku, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		p.ID, p.Name, p.SKU, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	return r.getProduct(ctx, p.ID)
}

func (r *txRepo) getProduct(ctx context.Context, id int64) (*orderDomain.Product, error) {
	var p orderDomain.Product
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT id, name, sku, created_at, updated_at FROM products WHERE id = ?`), id,
	).Scan(&p.ID, &p.Name, &p.SKU, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return &p, nil
}

// ------------------ Órdenes ------------------

const orderColumns = `id, code, driver_id, block_id, origin, destination, latitude, longitude,
	dispatch_date, "user", volume, weight, incidents, number_of_bags, status, created_at, updated_at`

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (*orderDomain.Order, error) {
	return r.getOrder(ctx, id, true)
}

func (r *txRepo) getOrder(ctx context.Context, id int64, lock bool) (*orderDomain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if lock {
		query = r.dialect.forUpdate(query)
	}

	var (
		o                 orderDomain.Order
		driverID, blockID sql.NullInt64
		lat, long         sql.NullFloat64
		volume, weight    sql.NullFloat64
		dispatch          sql.NullTime
		incidents         sql.NullString
		status            string
	)
	err := r.q.QueryRowContext(ctx, r.dialect.rebind(query), id).Scan(
		&o.ID, &o.Code, &driverID, &blockID, &o.Origin, &o.Destination, &lat, &long,
		&dispatch, &o.User, &volume, &weight, &incidents, &o.BagCount, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, err
	}

	if driverID.Valid {
		o.DriverID = &driverID.Int64
	}
	if blockID.Valid {
		o.BlockID = &blockID.Int64
	}
	if dispatch.Valid {
		t := dispatch.Time.UTC()
		o.DispatchDate = &t
	}
	if incidents.Valid {
		o.Incidents = &incidents.String
	}
	o.Latitude, o.Longitude = lat.Float64, long.Float64
	o.Volume, o.Weight = volume.Float64, weight.Float64
	o.Status = orderDomain.OrderStatus(status)
	return &o, nil
}

func (r *txRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT COUNT(1) FROM orders WHERE code = ?`), code,
	).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *txRepo) CreateOrder(ctx context.Context, o *orderDomain.Order) error {
	_, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		o.ID, o.Code, o.DriverID, o.BlockID, o.Origin, o.Destination, o.Latitude, o.Longitude,
		o.DispatchDate, o.User, o.Volume, o.Weight, o.Incidents, o.BagCount, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// UpdateOrder sólo toca los campos que aporta el evento; el resto de datos
// descriptivos se conserva.
func (r *txRepo) UpdateOrder(ctx context.Context, o *orderDomain.Order) error {
	res, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`UPDATE orders SET driver_id=?, block_id=?, status=?, dispatch_date=?, updated_at=? WHERE id=?`),
		o.DriverID, o.BlockID, string(o.Status), o.DispatchDate, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return orderDomain.ErrOrderNotFound
	}
	return nil
}

// ReplaceOrderProducts borra el conjunto anterior e inserta el nuevo.
func (r *txRepo) ReplaceOrderProducts(ctx context.Context, orderID int64, productIDs []int64) error {
	if _, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`DELETE FROM order_products WHERE order_id = ?`), orderID,
	); err != nil {
		return err
	}
	for _, pid := range productIDs {
		if _, err := r.q.ExecContext(ctx,
			r.dialect.rebind(`INSERT INTO order_products (order_id, product_id) VALUES (?, ?)`), orderID, pid,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) orderProducts(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx,
		r.dialect.rebind(`SELECT product_id FROM order_products WHERE order_id = ? ORDER BY product_id`), orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Verificación en tiempo de compilación.
var _ orderDomain.Tx = (*txRepo)(nil)
