package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	orderApp "github.com/davicafu/logistrack/internal/order/application"
	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
	"github.com/davicafu/logistrack/shared/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(ctx, db, SQLite))
	return NewStore(db, SQLite)
}

func ledgerRecord(t *testing.T, id string) sharedDomain.LedgerRecord {
	t.Helper()
	rec, err := sharedDomain.NewLedgerRecord(id, "order", map[string]interface{}{"orderId": 1})
	require.NoError(t, err)
	return rec
}

func TestLedgerRepo_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ledger := store.Ledger()

	exists, err := ledger.Exists(ctx, "1-0")
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := ledger.Record(ctx, ledgerRecord(t, "1-0"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = ledger.Record(ctx, ledgerRecord(t, "1-0"))
	require.NoError(t, err)
	assert.False(t, inserted, "a second record for the same id must be a no-op")

	exists, err = ledger.Exists(ctx, "1-0")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_WithinTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx orderDomain.Tx) error {
		inserted, err := tx.RecordEvent(ctx, ledgerRecord(t, "2-0"))
		require.NoError(t, err)
		require.True(t, inserted)
		_, err = tx.GetOrCreateDriver(ctx, orderDomain.PlaceholderDriver(7))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := store.Ledger().Exists(ctx, "2-0")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = store.GetDriver(ctx, 7)
	assert.Error(t, err, "driver must not survive the rollback")
}

func TestStore_GetOrCreateKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx orderDomain.Tx) error {
		b, err := tx.GetOrCreateBlock(ctx, orderDomain.PlaceholderBlock(5))
		require.NoError(t, err)
		assert.Equal(t, "Block-5", b.Name)
		assert.Equal(t, "Auto-created block", b.Description)

		b.Name = "Zona Norte"
		require.NoError(t, tx.UpdateBlock(ctx, b))

		again, err := tx.GetOrCreateBlock(ctx, orderDomain.PlaceholderBlock(5))
		require.NoError(t, err)
		assert.Equal(t, "Zona Norte", again.Name)

		p, err := tx.GetOrCreateProduct(ctx, orderDomain.PlaceholderProduct(9))
		require.NoError(t, err)
		assert.Equal(t, "SKU-9", p.SKU)
		return nil
	})
	require.NoError(t, err)

	block, err := store.GetBlock(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Zona Norte", block.Name)
}

func TestStore_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dispatch := time.Date(2025, 8, 30, 10, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, tx orderDomain.Tx) error {
		for _, id := range []int64{10, 11, 12} {
			_, err := tx.GetOrCreateProduct(ctx, orderDomain.PlaceholderProduct(id))
			require.NoError(t, err)
		}
		_, err := tx.GetOrCreateDriver(ctx, orderDomain.PlaceholderDriver(3))
		require.NoError(t, err)
		_, err = tx.GetOrCreateBlock(ctx, orderDomain.PlaceholderBlock(4))
		require.NoError(t, err)

		_, err = tx.GetOrderForUpdate(ctx, 100)
		assert.ErrorIs(t, err, orderDomain.ErrOrderNotFound)

		o := orderDomain.NewOrder(100, "PED-0042", 3, 4, dispatch)
		require.NoError(t, tx.CreateOrder(ctx, o))
		return tx.ReplaceOrderProducts(ctx, o.ID, []int64{10, 11})
	})
	require.NoError(t, err)

	got, err := store.GetOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "PED-0042", got.Code)
	assert.Equal(t, orderDomain.OrderApproved, got.Status)
	assert.Equal(t, "Bodega Central", got.Origin)
	assert.Equal(t, 2, got.BagCount)
	assert.Equal(t, []int64{10, 11}, got.ProductIDs)
	require.NotNil(t, got.DispatchDate)
	assert.True(t, dispatch.Equal(*got.DispatchDate))

	err = store.WithinTx(ctx, func(ctx context.Context, tx orderDomain.Tx) error {
		taken, err := tx.CodeExists(ctx, "PED-0042")
		require.NoError(t, err)
		assert.True(t, taken)

		o, err := tx.GetOrderForUpdate(ctx, 100)
		require.NoError(t, err)
		o.Reassign(3, 4, orderDomain.OrderInDispatch, dispatch.Add(time.Hour))
		require.NoError(t, tx.UpdateOrder(ctx, o))
		return tx.ReplaceOrderProducts(ctx, o.ID, []int64{12})
	})
	require.NoError(t, err)

	got, err = store.GetOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderInDispatch, got.Status)
	assert.Equal(t, "PED-0042", got.Code, "code is never regenerated on update")
	assert.Equal(t, []int64{12}, got.ProductIDs)
}

func applyOrder(t *testing.T, store *Store, svc *orderApp.OrderService, id string, payload map[string]interface{}) error {
	t.Helper()
	evt := events.Event{ID: id, Type: orderDomain.OrderEvent, Payload: payload}
	return store.WithinTx(context.Background(), func(ctx context.Context, tx orderDomain.Tx) error {
		_, err := svc.ApplyEvent(ctx, tx, evt)
		return err
	})
}

func blockPayload(orderID, blockID int64) map[string]interface{} {
	return map[string]interface{}{
		"orderId":      orderID,
		"blockId":      blockID,
		"driverId":     1,
		"products":     []interface{}{},
		"dispatchDate": "2025-08-30 10:00:00",
	}
}

func TestStore_PlaceholderBlockNameTakenByAnotherBlock(t *testing.T) {
	// Arrange: el bloque 1 se renombra a "Block-2"
	ctx := context.Background()
	store := newTestStore(t)
	svc := orderApp.NewOrderService(nil, zap.NewNop())

	first := blockPayload(1, 1)
	first["block"] = map[string]interface{}{"name": "Block-2"}
	require.NoError(t, applyOrder(t, store, svc, "1-0", first))

	// Act: llega un pedido que referencia el bloque 2 sin enriquecerlo
	err := applyOrder(t, store, svc, "2-0", blockPayload(2, 2))

	// Assert
	require.NoError(t, err)
	renamed, err := store.GetBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Block-2", renamed.Name)

	placeholder, err := store.GetBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, orderDomain.FallbackBlockName(2), placeholder.Name)

	order, err := store.GetOrder(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, order.BlockID)
	assert.Equal(t, int64(2), *order.BlockID)
}

func TestStore_RenameBlockToTakenNameIsInvalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := orderApp.NewOrderService(nil, zap.NewNop())

	first := blockPayload(1, 1)
	first["block"] = map[string]interface{}{"name": "Zona Norte"}
	require.NoError(t, applyOrder(t, store, svc, "1-0", first))

	second := blockPayload(2, 2)
	second["block"] = map[string]interface{}{"name": "Zona Norte"}
	err := applyOrder(t, store, svc, "2-0", second)

	var verr *orderDomain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Invalid, 1)
	assert.Contains(t, verr.Invalid[0], "block.name")

	_, err = store.GetOrder(ctx, 2)
	assert.Error(t, err, "the rejected event must not leave an order behind")
}
