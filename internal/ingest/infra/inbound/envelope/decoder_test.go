package envelope

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
)

// legacyMessage construye el sobre tal y como lo escribe el publicador PHP.
func legacyMessage(t *testing.T, eventType string, payload map[string]interface{}) string {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"eventType": eventType, "payload": payload})
	require.NoError(t, err)
	outer, err := json.Marshal(map[string]interface{}{"body": string(body), "headers": []string{}})
	require.NoError(t, err)
	return fmt.Sprintf("s:%d:\"%s\";", len(outer), outer)
}

func TestDecode_LegacyEnvelopeRoundTrip(t *testing.T) {
	// Arrange
	payload := map[string]interface{}{
		"orderId":      float64(1),
		"blockId":      float64(5),
		"driverId":     float64(7),
		"products":     []interface{}{float64(10), float64(11)},
		"dispatchDate": "2025-08-30 10:00:00",
	}
	msg := ingestDomain.RawMessage{
		ID:     "1692200000000-0",
		Fields: map[string]string{"message": legacyMessage(t, "order", payload)},
	}

	// Act
	evt, err := NewDecoder().Decode(msg)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "1692200000000-0", evt.ID)
	assert.Equal(t, "order", evt.Type)
	assert.Equal(t, json.Number("1"), evt.Payload["orderId"])
	assert.Equal(t, "2025-08-30 10:00:00", evt.Payload["dispatchDate"])
	assert.Equal(t, []interface{}{json.Number("10"), json.Number("11")}, evt.Payload["products"])
}

func TestDecode_PlainJSONVariants(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		typ    string
	}{
		{
			name:   "no wrapper, body as string",
			fields: map[string]string{"message": `{"body":"{\"eventType\":\"order\",\"payload\":{\"orderId\":2}}"}`},
			typ:    "order",
		},
		{
			name:   "body as object",
			fields: map[string]string{"message": `{"body":{"eventType":"order","payload":{"orderId":2}}}`},
			typ:    "order",
		},
		{
			name:   "no body, data field, payload as string",
			fields: map[string]string{"data": `{"event_type":"consolidated.blocks.ready.distribution","payload":"{\"orderId\":2}"}`},
			typ:    "consolidated.blocks.ready.distribution",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := NewDecoder().Decode(ingestDomain.RawMessage{ID: "2-0", Fields: tt.fields})

			require.NoError(t, err)
			assert.Equal(t, tt.typ, evt.Type)
			assert.Equal(t, json.Number("2"), evt.Payload["orderId"])
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"field absent", map[string]string{"other": "x"}},
		{"outer not JSON", map[string]string{"message": `s:3:"abc";`}},
		{"body not JSON", map[string]string{"message": `{"body":"not json"}`}},
		{"missing eventType", map[string]string{"message": `{"payload":{"orderId":1}}`}},
		{"empty eventType", map[string]string{"message": `{"eventType":"","payload":{"orderId":1}}`}},
		{"missing payload", map[string]string{"message": `{"eventType":"order"}`}},
		{"payload is a list", map[string]string{"message": `{"eventType":"order","payload":[1,2]}`}},
		{"envelope is null", map[string]string{"message": `null`}},
		{"trailing garbage", map[string]string{"message": `{"eventType":"order","payload":{"orderId":1}} }garbage{`}},
		{"second JSON value", map[string]string{"message": `{"eventType":"order","payload":{"orderId":1}} {}`}},
		{"body with trailing garbage", map[string]string{"message": `{"body":"{\"eventType\":\"order\",\"payload\":{}}x"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(ingestDomain.RawMessage{ID: "3-0", Fields: tt.fields})

			var decodeErr *ingestDomain.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, "3-0", decodeErr.MessageID)
			assert.True(t, ingestDomain.IsPoison(err))
		})
	}
}

func TestDecode_TrailingWhitespaceIsAccepted(t *testing.T) {
	msg := ingestDomain.RawMessage{ID: "5-0", Fields: map[string]string{
		"message": "{\"eventType\":\"order\",\"payload\":{\"orderId\":5}}\n  ",
	}}

	evt, err := NewDecoder().Decode(msg)

	require.NoError(t, err)
	assert.Equal(t, json.Number("5"), evt.Payload["orderId"])
}

func TestDecode_CustomFieldOrder(t *testing.T) {
	msg := ingestDomain.RawMessage{ID: "4-0", Fields: map[string]string{
		"message": `{"eventType":"ignored","payload":{}}`,
		"event":   `{"eventType":"order","payload":{"orderId":4}}`,
	}}

	evt, err := NewDecoder("event", "message").Decode(msg)

	require.NoError(t, err)
	assert.Equal(t, "order", evt.Type)
}
