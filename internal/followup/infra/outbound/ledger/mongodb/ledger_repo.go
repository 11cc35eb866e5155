package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	sharedDomain "github.com/davicafu/logistrack/shared/domain"
)

const ledgerCollection = "event_ledger"

// LedgerRepoMongoDB implementa sharedDomain.Ledger. El _id del documento es el
// event_id, así la unicidad la garantiza el propio índice primario.
type LedgerRepoMongoDB struct {
	coll *mongo.Collection
}

func NewLedgerRepoMongoDB(client *mongo.Client, dbName string) *LedgerRepoMongoDB {
	return &LedgerRepoMongoDB{coll: client.Database(dbName).Collection(ledgerCollection)}
}

type mongoLedgerRecord struct {
	EventID    string      `bson:"_id"`
	EventType  string      `bson:"eventType"`
	Payload    interface{} `bson:"payload"`
	ReceivedAt time.Time   `bson:"receivedAt"`
}

func (r *LedgerRepoMongoDB) Exists(ctx context.Context, eventID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": eventID})
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return n > 0, nil
}

// Record devuelve false si otro worker insertó el mismo event_id antes.
func (r *LedgerRepoMongoDB) Record(ctx context.Context, rec sharedDomain.LedgerRecord) (bool, error) {
	doc, err := toMongoLedgerRecord(rec)
	if err != nil {
		return false, err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert ledger record: %w", err)
	}
	return true, nil
}

// toMongoLedgerRecord guarda el payload como documento y no como string, para
// poder consultarlo desde la shell.
func toMongoLedgerRecord(rec sharedDomain.LedgerRecord) (mongoLedgerRecord, error) {
	var payload bson.M
	if len(rec.Payload) > 0 {
		if err := bson.UnmarshalExtJSON(rec.Payload, false, &payload); err != nil {
			return mongoLedgerRecord{}, fmt.Errorf("failed to convert payload to bson: %w", err)
		}
	}
	return mongoLedgerRecord{
		EventID:    rec.EventID,
		EventType:  rec.EventType,
		Payload:    payload,
		ReceivedAt: rec.ReceivedAt,
	}, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.Ledger = (*LedgerRepoMongoDB)(nil)
