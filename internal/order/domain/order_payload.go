package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DispatchDateLayout es el formato de dispatchDate en el payload (UTC).
const DispatchDateLayout = "2006-01-02 15:04:05"

// Campos obligatorios en el orden canónico; el alias snake_case lo emiten
// publicadores más antiguos.
var requiredFields = []struct {
	name  string
	alias string
}{
	{"orderId", "order_id"},
	{"blockId", "block_id"},
	{"driverId", "driver_id"},
	{"products", "products"},
	{"dispatchDate", "dispatch_date"},
}

// DriverDetails y BlockDetails son datos opcionales de enriquecimiento.
type DriverDetails struct {
	Name  string
	Email *string
}

type BlockDetails struct {
	Name        string
	Description string
}

// OrderPayload es el payload de un evento de orden ya validado y tipado.
type OrderPayload struct {
	OrderID      int64
	BlockID      int64
	DriverID     int64
	Products     []int64 // sin duplicados, en orden de aparición
	DispatchDate time.Time
	Status       *OrderStatus
	Driver       *DriverDetails
	Block        *BlockDetails
}

// ParseOrderPayload valida y convierte el payload genérico del evento.
// Devuelve *ValidationError si falta algún campo o alguno no tiene el tipo esperado.
func ParseOrderPayload(payload map[string]interface{}) (OrderPayload, error) {
	verr := &ValidationError{}
	values := make(map[string]interface{}, len(requiredFields))
	for _, f := range requiredFields {
		v, ok := lookup(payload, f.name, f.alias)
		if !ok {
			verr.Missing = append(verr.Missing, f.name)
			continue
		}
		values[f.name] = v
	}
	if len(verr.Missing) > 0 {
		return OrderPayload{}, verr
	}

	var p OrderPayload
	var err error
	if p.OrderID, err = toInt64(values["orderId"]); err != nil {
		verr.invalid("orderId", err)
	}
	if p.BlockID, err = toInt64(values["blockId"]); err != nil {
		verr.invalid("blockId", err)
	}
	if p.DriverID, err = toInt64(values["driverId"]); err != nil {
		verr.invalid("driverId", err)
	}
	if p.Products, err = toInt64Set(values["products"]); err != nil {
		verr.invalid("products", err)
	}
	if p.DispatchDate, err = toDispatchDate(values["dispatchDate"]); err != nil {
		verr.invalid("dispatchDate", err)
	}

	if raw, ok := payload["status"]; ok && raw != nil {
		s, isStr := raw.(string)
		status := OrderStatus(strings.ToUpper(s))
		if !isStr || !status.Valid() {
			verr.invalid("status", fmt.Errorf("unknown order status %v", raw))
		} else {
			p.Status = &status
		}
	}

	if obj, ok := payload["driver"].(map[string]interface{}); ok {
		d := &DriverDetails{Name: stringField(obj, "name")}
		if email := stringField(obj, "email"); email != "" {
			d.Email = &email
		}
		if d.Name != "" || d.Email != nil {
			p.Driver = d
		}
	}
	if obj, ok := payload["block"].(map[string]interface{}); ok {
		b := &BlockDetails{Name: stringField(obj, "name"), Description: stringField(obj, "description")}
		if b.Name != "" || b.Description != "" {
			p.Block = b
		}
	}

	if len(verr.Invalid) > 0 {
		return OrderPayload{}, verr
	}
	return p, nil
}

func lookup(payload map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := payload[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		// 2^63 sí es representable en float64 pero no cabe en int64.
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is out of int64 range", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toInt64Set(v interface{}) ([]int64, error) {
	var items []interface{}
	switch list := v.(type) {
	case []interface{}:
		items = list
	case []int64:
		return dedupe(list), nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", v)
	}

	ids := make([]int64, 0, len(items))
	for i, item := range items {
		id, err := toInt64(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return dedupe(ids), nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toDispatchDate(v interface{}) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected a string, got %T", v)
	}
	return time.ParseInLocation(DispatchDateLayout, strings.TrimSpace(s), time.UTC)
}
