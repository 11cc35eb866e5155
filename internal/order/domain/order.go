package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderApproved       OrderStatus = "APPROVED"
	OrderInDispatch     OrderStatus = "IN_DISPATCH"
	OrderReadyToShip    OrderStatus = "READY_TO_SHIP"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderRejected       OrderStatus = "REJECTED"
	OrderReadyToDeliver OrderStatus = "READY_TO_DELIVER"
)

// Valid indica si el estado pertenece a la enumeración cerrada.
// Las transiciones no se validan: los eventos pueden fijar cualquier estado.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderApproved, OrderInDispatch, OrderReadyToShip,
		OrderCompleted, OrderDelivered, OrderRejected, OrderReadyToDeliver:
		return true
	}
	return false
}

type Driver struct {
	ID        int64
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Block struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Product struct {
	ID        int64
	Name      string
	SKU       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID           int64
	Code         string
	DriverID     *int64
	BlockID      *int64
	ProductIDs   []int64
	Origin       string
	Destination  string
	Latitude     float64
	Longitude    float64
	DispatchDate *time.Time
	User         string
	Volume       float64
	Weight       float64
	Incidents    *string
	BagCount     int
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// --- Placeholders ---
// Una entidad referenciada que aún no existe se crea con estos datos; un
// evento posterior más rico sobrescribe los campos.

func PlaceholderDriver(id int64) Driver {
	return Driver{ID: id, Name: fmt.Sprintf("Driver-%d", id)}
}

func PlaceholderBlock(id int64) Block {
	return Block{ID: id, Name: fmt.Sprintf("Block-%d", id), Description: "Auto-created block"}
}

// FallbackBlockName se usa cuando otro bloque ya lleva el nombre Block-<id>.
func FallbackBlockName(id int64) string {
	return fmt.Sprintf("Block-%d (auto %d)", id, id)
}

func PlaceholderProduct(id int64) Product {
	return Product{ID: id, Name: fmt.Sprintf("Product-%d", id), SKU: fmt.Sprintf("SKU-%d", id)}
}

// NewOrder crea una orden con los campos descriptivos por defecto.
// El estado de una orden nueva es siempre APPROVED.
func NewOrder(id int64, code string, driverID, blockID int64, dispatchDate time.Time) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:           id,
		Code:         code,
		DriverID:     &driverID,
		BlockID:      &blockID,
		Origin:       "Bodega Central",
		Destination:  "Supermercado La Estrella",
		Latitude:     19.432608,
		Longitude:    -99.133209,
		DispatchDate: &dispatchDate,
		User:         "operador1",
		Volume:       0.50,
		Weight:       30.00,
		BagCount:     2,
		Status:       OrderApproved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// --- Métodos de dominio ---

// Reassign aplica los datos de un evento sobre una orden existente.
func (o *Order) Reassign(driverID, blockID int64, status OrderStatus, dispatchDate time.Time) {
	o.DriverID = &driverID
	o.BlockID = &blockID
	o.Status = status
	o.DispatchDate = &dispatchDate
	o.UpdatedAt = time.Now().UTC()
}

// ReplaceProducts sustituye el conjunto completo de productos (no mezcla).
func (o *Order) ReplaceProducts(ids []int64) {
	o.ProductIDs = append([]int64(nil), ids...)
	o.UpdatedAt = time.Now().UTC()
}
