package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestParseOrderPayload_Valid(t *testing.T) {
	payload := decodePayload(t, `{"orderId": 12, "blockId": 3, "driverId": 999,
		"products": [1, 2, 2, 5], "dispatchDate": "2025-08-12 16:45:05"}`)

	p, err := ParseOrderPayload(payload)

	require.NoError(t, err)
	assert.Equal(t, int64(12), p.OrderID)
	assert.Equal(t, int64(3), p.BlockID)
	assert.Equal(t, int64(999), p.DriverID)
	assert.Equal(t, []int64{1, 2, 5}, p.Products)
	assert.Equal(t, time.Date(2025, 8, 12, 16, 45, 5, 0, time.UTC), p.DispatchDate)
	assert.Nil(t, p.Status)
	assert.Nil(t, p.Driver)
}

func TestParseOrderPayload_SnakeCaseAliases(t *testing.T) {
	payload := map[string]interface{}{
		"order_id":      float64(1),
		"block_id":      "2",
		"driver_id":     int64(3),
		"products":      []interface{}{float64(4)},
		"dispatch_date": "2025-01-01 00:00:00",
	}

	p, err := ParseOrderPayload(payload)

	require.NoError(t, err)
	assert.Equal(t, int64(1), p.OrderID)
	assert.Equal(t, int64(2), p.BlockID)
	assert.Equal(t, int64(3), p.DriverID)
	assert.Equal(t, []int64{4}, p.Products)
}

func TestParseOrderPayload_MissingDispatchDate(t *testing.T) {
	payload := decodePayload(t, `{"orderId": 1, "blockId": 2, "driverId": 3, "products": [1]}`)

	_, err := ParseOrderPayload(payload)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"dispatchDate"}, verr.Missing, "Debe nombrar exactamente el campo ausente")
	assert.Empty(t, verr.Invalid)
	assert.Contains(t, err.Error(), "dispatchDate")
}

func TestParseOrderPayload_InvalidTypes(t *testing.T) {
	payload := decodePayload(t, `{"orderId": 1.5, "blockId": 2, "driverId": 3,
		"products": "1,2", "dispatchDate": "12/08/2025", "status": "SHIPPED"}`)

	_, err := ParseOrderPayload(payload)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, verr.Missing)
	require.Len(t, verr.Invalid, 4)
	assert.True(t, strings.HasPrefix(verr.Invalid[0], "orderId"))
	assert.True(t, strings.HasPrefix(verr.Invalid[1], "products"))
	assert.True(t, strings.HasPrefix(verr.Invalid[2], "dispatchDate"))
	assert.True(t, strings.HasPrefix(verr.Invalid[3], "status"))
}

func TestParseOrderPayload_FloatIDsOutOfRange(t *testing.T) {
	// Payload decodificado sin UseNumber: los números llegan como float64.
	payload := map[string]interface{}{
		"orderId":      1e19,
		"blockId":      float64(2),
		"driverId":     -1e19,
		"products":     []interface{}{float64(4), 9.223372036854775807e18},
		"dispatchDate": "2025-01-01 00:00:00",
	}

	_, err := ParseOrderPayload(payload)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Invalid, 3)
	assert.True(t, strings.HasPrefix(verr.Invalid[0], "orderId"))
	assert.Contains(t, verr.Invalid[0], "out of int64 range")
	assert.True(t, strings.HasPrefix(verr.Invalid[1], "driverId"))
	assert.True(t, strings.HasPrefix(verr.Invalid[2], "products"))
}

func TestParseOrderPayload_StatusAndEnrichment(t *testing.T) {
	payload := decodePayload(t, `{"orderId": 1, "blockId": 2, "driverId": 3, "products": [],
		"dispatchDate": "2025-01-01 00:00:00", "status": "in_dispatch",
		"driver": {"name": "Juan Pérez", "email": "juan@logistrack.mx"},
		"block": {"name": "Bloque Norte"}}`)

	p, err := ParseOrderPayload(payload)

	require.NoError(t, err)
	require.NotNil(t, p.Status)
	assert.Equal(t, OrderInDispatch, *p.Status)
	require.NotNil(t, p.Driver)
	assert.Equal(t, "Juan Pérez", p.Driver.Name)
	assert.Equal(t, "juan@logistrack.mx", *p.Driver.Email)
	require.NotNil(t, p.Block)
	assert.Equal(t, "Bloque Norte", p.Block.Name)
	assert.Empty(t, p.Products)
}
