// en internal/order/application/order_service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	// --- Importaciones del dominio y compartidas ---
	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	sharedCache "github.com/davicafu/logistrack/shared/platform/cache"
	"github.com/davicafu/logistrack/shared/events"
)

const maxCodeAttempts = 10

// OrderService aplica eventos de orden sobre el store (get-or-create + upsert).
// Toda escritura ocurre dentro de la Tx que recibe; el servicio no abre transacciones.
type OrderService struct {
	cache   sharedCache.Cache
	newCode func() string
	log     *zap.Logger
}

// NewOrderService es el constructor; cache puede ser nil.
func NewOrderService(cache sharedCache.Cache, log *zap.Logger) *OrderService {
	return &OrderService{
		cache:   cache,
		newCode: randomCode,
		log:     log,
	}
}

// WithCodeGenerator sustituye el generador de códigos (tests).
func (s *OrderService) WithCodeGenerator(gen func() string) *OrderService {
	s.newCode = gen
	return s
}

// Apply valida el payload y aplica el evento dentro de tx. La función devuelta
// debe llamarse sólo después del commit: invalida la caché de lectura.
func (s *OrderService) Apply(ctx context.Context, tx orderDomain.Tx, evt events.Event) (func(), error) {
	order, err := s.ApplyEvent(ctx, tx, evt)
	if err != nil {
		return nil, err
	}
	key := orderDomain.OrderCacheKeyByID(order.ID)
	return func() {
		sharedCache.AsyncCacheDelete(s.cache, key, s.log)
	}, nil
}

// ApplyEvent ejecuta los cinco pasos del upsert y devuelve la orden resultante.
func (s *OrderService) ApplyEvent(ctx context.Context, tx orderDomain.Tx, evt events.Event) (*orderDomain.Order, error) {
	// 1. Validación
	p, err := orderDomain.ParseOrderPayload(evt.Payload)
	if err != nil {
		return nil, err
	}

	// 2. Conductor y bloque (placeholder si no existen)
	if err := s.resolveDriver(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := s.resolveBlock(ctx, tx, p); err != nil {
		return nil, err
	}

	// 3. Productos
	productIDs := make([]int64, 0, len(p.Products))
	for _, id := range p.Products {
		product, err := tx.GetOrCreateProduct(ctx, orderDomain.PlaceholderProduct(id))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product %d: %w", id, err)
		}
		productIDs = append(productIDs, product.ID)
	}

	// 4. Orden: actualizar en sitio o crear con valores por defecto
	order, err := tx.GetOrderForUpdate(ctx, p.OrderID)
	switch {
	case err == nil:
		status := orderDomain.OrderApproved
		if p.Status != nil {
			status = *p.Status
		}
		order.Reassign(p.DriverID, p.BlockID, status, p.DispatchDate)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to update order %d: %w", order.ID, err)
		}
	case errors.Is(err, orderDomain.ErrOrderNotFound):
		code, err := s.uniqueCode(ctx, tx)
		if err != nil {
			return nil, err
		}
		order = orderDomain.NewOrder(p.OrderID, code, p.DriverID, p.BlockID, p.DispatchDate)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("failed to create order %d: %w", order.ID, err)
		}
	default:
		return nil, fmt.Errorf("failed to load order %d: %w", p.OrderID, err)
	}

	// 5. Reemplazo completo del conjunto de productos
	order.ReplaceProducts(productIDs)
	if err := tx.ReplaceOrderProducts(ctx, order.ID, productIDs); err != nil {
		return nil, fmt.Errorf("failed to set products of order %d: %w", order.ID, err)
	}

	s.log.Debug("Order upserted from event",
		zap.String("event_id", evt.ID),
		zap.Int64("order_id", order.ID),
		zap.String("code", order.Code),
		zap.Int("products", len(productIDs)),
	)
	return order, nil
}

func (s *OrderService) resolveDriver(ctx context.Context, tx orderDomain.Tx, p orderDomain.OrderPayload) error {
	driver, err := tx.GetOrCreateDriver(ctx, orderDomain.PlaceholderDriver(p.DriverID))
	if err != nil {
		return fmt.Errorf("failed to resolve driver %d: %w", p.DriverID, err)
	}
	if p.Driver == nil {
		return nil
	}
	if p.Driver.Name != "" {
		driver.Name = p.Driver.Name
	}
	if p.Driver.Email != nil {
		driver.Email = p.Driver.Email
	}
	return tx.UpdateDriver(ctx, driver)
}

// resolveBlock respeta la unicidad de blocks.name: el placeholder usa un nombre
// alternativo si Block-<id> ya está cogido, y un renombrado hacia el nombre de
// otro bloque se rechaza como ValidationError.
func (s *OrderService) resolveBlock(ctx context.Context, tx orderDomain.Tx, p orderDomain.OrderPayload) error {
	placeholder := orderDomain.PlaceholderBlock(p.BlockID)
	owner, taken, err := tx.BlockNameOwner(ctx, placeholder.Name)
	if err != nil {
		return fmt.Errorf("failed to resolve block %d: %w", p.BlockID, err)
	}
	if taken && owner != p.BlockID {
		placeholder.Name = orderDomain.FallbackBlockName(p.BlockID)
	}

	block, err := tx.GetOrCreateBlock(ctx, placeholder)
	if err != nil {
		return fmt.Errorf("failed to resolve block %d: %w", p.BlockID, err)
	}
	if p.Block == nil {
		return nil
	}
	if p.Block.Name != "" && p.Block.Name != block.Name {
		owner, taken, err := tx.BlockNameOwner(ctx, p.Block.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve block %d: %w", p.BlockID, err)
		}
		if taken && owner != block.ID {
			return &orderDomain.ValidationError{Invalid: []string{
				fmt.Sprintf("block.name (%q already belongs to block %d)", p.Block.Name, owner),
			}}
		}
		block.Name = p.Block.Name
	}
	if p.Block.Description != "" {
		block.Description = p.Block.Description
	}
	return tx.UpdateBlock(ctx, block)
}

// uniqueCode genera un código PED-NNNN libre; con el espacio agotado cae a un sufijo uuid.
func (s *OrderService) uniqueCode(ctx context.Context, tx orderDomain.Tx) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.newCode()
		taken, err := tx.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check order code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	code := "PED-" + strings.ToUpper(uuid.NewString()[:8])
	s.log.Warn("Order code space congested, using fallback code", zap.String("code", code))
	return code, nil
}

func randomCode() string {
	return fmt.Sprintf("PED-%04d", rand.IntN(10000))
}
