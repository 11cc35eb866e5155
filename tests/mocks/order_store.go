package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

// orderState es todo lo que persiste el store; WithinTx trabaja sobre una copia
// y sólo la publica si fn termina sin error.
type orderState struct {
	ledger   map[string]sharedDomain.LedgerRecord
	drivers  map[int64]orderDomain.Driver
	blocks   map[int64]orderDomain.Block
	products map[int64]orderDomain.Product
	orders   map[int64]orderDomain.Order
}

func newOrderState() *orderState {
	return &orderState{
		ledger:   make(map[string]sharedDomain.LedgerRecord),
		drivers:  make(map[int64]orderDomain.Driver),
		blocks:   make(map[int64]orderDomain.Block),
		products: make(map[int64]orderDomain.Product),
		orders:   make(map[int64]orderDomain.Order),
	}
}

func (s *orderState) clone() *orderState {
	c := newOrderState()
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	for k, v := range s.drivers {
		c.drivers[k] = v
	}
	for k, v := range s.blocks {
		c.blocks[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		v.ProductIDs = append([]int64(nil), v.ProductIDs...)
		c.orders[k] = v
	}
	return c
}

// InMemoryOrderStore simula orderDomain.Store con transacciones serializadas.
type InMemoryOrderStore struct {
	mu    sync.Mutex
	state *orderState

	// BeforeCommit, si no es nil, se ejecuta dentro de WithinTx justo antes de
	// publicar el estado; un error provoca rollback.
	BeforeCommit func() error
}

var _ orderDomain.Store = (*InMemoryOrderStore)(nil)

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{state: newOrderState()}
}

func (s *InMemoryOrderStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orderDomain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &inMemoryTx{state: work}); err != nil {
		return err
	}
	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(); err != nil {
			return err
		}
	}
	s.state = work
	return nil
}

func (s *InMemoryOrderStore) Ledger() sharedDomain.Ledger {
	return inMemoryLedger{store: s}
}

// --- Lecturas para las aserciones ---

func (s *InMemoryOrderStore) Order(id int64) (orderDomain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

func (s *InMemoryOrderStore) Driver(id int64) (orderDomain.Driver, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.state.drivers[id]
	return d, ok
}

func (s *InMemoryOrderStore) Block(id int64) (orderDomain.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.blocks[id]
	return b, ok
}

func (s *InMemoryOrderStore) Product(id int64) (orderDomain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	return p, ok
}

func (s *InMemoryOrderStore) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.ledger)
}

func (s *InMemoryOrderStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

// SeedOrder inserta una orden ya existente (con su código) fuera de cualquier evento.
func (s *InMemoryOrderStore) SeedOrder(o orderDomain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = o
}

// --- Ledger ---

type inMemoryLedger struct {
	store *InMemoryOrderStore
}

func (l inMemoryLedger) Exists(ctx context.Context, eventID string) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	_, ok := l.store.state.ledger[eventID]
	return ok, nil
}

func (l inMemoryLedger) Record(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.state.ledger[rec.EventID]; ok {
		return false, nil
	}
	l.store.state.ledger[rec.EventID] = rec
	return true, nil
}

// --- Tx ---

type inMemoryTx struct {
	state *orderState
}

func (t *inMemoryTx) RecordEvent(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	if _, ok := t.state.ledger[rec.EventID]; ok {
		return false, nil
	}
	t.state.ledger[rec.EventID] = rec
	return true, nil
}

func (t *inMemoryTx) GetOrCreateDriver(ctx context.Context, p orderDomain.Driver) (*orderDomain.Driver, error) {
	d, ok := t.state.drivers[p.ID]
	if !ok {
		d = p
		d.CreatedAt, d.UpdatedAt = time.Now().UTC(), time.Now().UTC()
		t.state.drivers[p.ID] = d
	}
	return &d, nil
}

func (t *inMemoryTx) UpdateDriver(ctx context.Context, d *orderDomain.Driver) error {
	d.UpdatedAt = time.Now().UTC()
	t.state.drivers[d.ID] = *d
	return nil
}

func (t *inMemoryTx) GetOrCreateBlock(ctx context.Context, p orderDomain.Block) (*orderDomain.Block, error) {
	b, ok := t.state.blocks[p.ID]
	if !ok {
		if owner, taken, _ := t.BlockNameOwner(ctx, p.Name); taken {
			return nil, fmt.Errorf("block name %q already used by block %d", p.Name, owner)
		}
		b = p
		b.CreatedAt, b.UpdatedAt = time.Now().UTC(), time.Now().UTC()
		t.state.blocks[p.ID] = b
	}
	return &b, nil
}

func (t *inMemoryTx) BlockNameOwner(ctx context.Context, name string) (int64, bool, error) {
	for id, b := range t.state.blocks {
		if b.Name == name {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *inMemoryTx) UpdateBlock(ctx context.Context, b *orderDomain.Block) error {
	if owner, taken, _ := t.BlockNameOwner(ctx, b.Name); taken && owner != b.ID {
		return fmt.Errorf("block name %q already used by block %d", b.Name, owner)
	}
	b.UpdatedAt = time.Now().UTC()
	t.state.blocks[b.ID] = *b
	return nil
}

func (t *inMemoryTx) GetOrCreateProduct(ctx context.Context, p orderDomain.Product) (*orderDomain.Product, error) {
	pr, ok := t.state.products[p.ID]
	if !ok {
		pr = p
		pr.CreatedAt, pr.UpdatedAt = time.Now().UTC(), time.Now().UTC()
		t.state.products[p.ID] = pr
	}
	return &pr, nil
}

func (t *inMemoryTx) GetOrderForUpdate(ctx context.Context, id int64) (*orderDomain.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, orderDomain.ErrOrderNotFound
	}
	o.ProductIDs = append([]int64(nil), o.ProductIDs...)
	return &o, nil
}

func (t *inMemoryTx) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, o := range t.state.orders {
		if o.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *inMemoryTx) CreateOrder(ctx context.Context, o *orderDomain.Order) error {
	t.state.orders[o.ID] = *o
	return nil
}

func (t *inMemoryTx) UpdateOrder(ctx context.Context, o *orderDomain.Order) error {
	if _, ok := t.state.orders[o.ID]; !ok {
		return orderDomain.ErrOrderNotFound
	}
	t.state.orders[o.ID] = *o
	return nil
}

func (t *inMemoryTx) ReplaceOrderProducts(ctx context.Context, orderID int64, productIDs []int64) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return orderDomain.ErrOrderNotFound
	}
	ids := append([]int64(nil), productIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	o.ProductIDs = ids
	t.state.orders[orderID] = o
	return nil
}
