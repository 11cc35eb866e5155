package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

func TestToMongoLedgerRecord_PayloadBecomesDocument(t *testing.T) {
	rec, err := sharedDomain.NewLedgerRecord("1-0", "order", map[string]interface{}{
		"orderId":  1,
		"products": []int{1, 2},
	})
	require.NoError(t, err)

	doc, err := toMongoLedgerRecord(rec)

	require.NoError(t, err)
	assert.Equal(t, "1-0", doc.EventID)
	assert.Equal(t, "order", doc.EventType)
	payload, ok := doc.Payload.(bson.M)
	require.True(t, ok)
	assert.Contains(t, payload, "orderId")
	assert.Contains(t, payload, "products")
	assert.WithinDuration(t, time.Now(), doc.ReceivedAt, time.Minute)
}

func TestToMongoLedgerRecord_InvalidPayload(t *testing.T) {
	rec := sharedDomain.LedgerRecord{EventID: "1-0", Payload: []byte("not json")}

	_, err := toMongoLedgerRecord(rec)

	assert.Error(t, err)
}
