package dispatch

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/logistrack/shared/events"
	sharedBus "github.com/davicafu/logistrack/shared/platform/bus"
)

// messageWriter es el subconjunto de *kafka.Writer que usamos.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher escribe cada job en el topic del writer, con el id del evento como clave.
type KafkaDispatcher struct {
	writer messageWriter
	log    *zap.Logger
}

var _ sharedBus.Dispatcher = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(writer messageWriter, log *zap.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{writer: writer, log: log}
}

// NewKafkaWriter crea el writer por defecto para el topic de jobs.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaDispatcher) Dispatch(ctx context.Context, job events.TaskJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(job.PartitionKey()),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.Error(err))
		return err
	}

	p.log.Debug("Task job published", zap.String("event_id", job.EventID))
	return nil
}
