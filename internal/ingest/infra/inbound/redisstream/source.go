package redisstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
)

// Options configura el grupo de consumidores sobre un stream.
type Options struct {
	Stream           string
	Group            string
	Consumer         string // vacío: <hostname>-<uuid8>
	GroupStart       string // id desde el que lee un grupo nuevo; "$" = sólo mensajes nuevos
	Count            int64
	Block            time.Duration // > 0; BLOCK 0 esperaría indefinidamente
	ReclaimMinIdle   time.Duration // 0 desactiva la recuperación de pendientes
	ReclaimInterval  time.Duration
	DeadLetterStream string
}

// Source implementa ingestDomain.Source sobre Redis Streams.
type Source struct {
	client redis.UniversalClient
	opts   Options
	log    *zap.Logger

	mu          sync.Mutex
	lastReclaim time.Time
}

var _ ingestDomain.Source = (*Source)(nil)

func NewSource(client redis.UniversalClient, opts Options, log *zap.Logger) *Source {
	if opts.Consumer == "" {
		opts.Consumer = defaultConsumerName()
	}
	if opts.GroupStart == "" {
		opts.GroupStart = "$"
	}
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.DeadLetterStream == "" {
		opts.DeadLetterStream = opts.Stream + ".dead"
	}
	return &Source{client: client, opts: opts, log: log}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Consumer devuelve el nombre con el que este proceso se registra en el grupo.
func (s *Source) Consumer() string {
	return s.opts.Consumer
}

func (s *Source) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.opts.Stream, s.opts.Group, s.opts.GroupStart).Err()
	if err != nil && !isBusyGroup(err) {
		return &ingestDomain.TransportError{Op: "xgroup create", Err: err}
	}
	if err == nil {
		s.log.Info("Consumer group created",
			zap.String("stream", s.opts.Stream),
			zap.String("group", s.opts.Group),
			zap.String("start", s.opts.GroupStart))
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Read recupera primero las entradas pendientes abandonadas (si toca) y si no
// hay ninguna lee mensajes nuevos con XREADGROUP.
func (s *Source) Read(ctx context.Context) ([]ingestDomain.RawMessage, error) {
	if s.reclaimDue() {
		claimed, err := s.reclaim(ctx)
		if err != nil {
			return nil, err
		}
		if len(claimed) > 0 {
			return claimed, nil
		}
	}

	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.opts.Group,
		Consumer: s.opts.Consumer,
		Streams:  []string{s.opts.Stream, ">"},
		Count:    s.opts.Count,
		Block:    s.opts.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &ingestDomain.TransportError{Op: "xreadgroup", Err: err}
	}

	var out []ingestDomain.RawMessage
	for _, stream := range res {
		for _, m := range stream.Messages {
			out = append(out, toRawMessage(m))
		}
	}
	return out, nil
}

func (s *Source) reclaimDue() bool {
	if s.opts.ReclaimMinIdle <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastReclaim) < s.opts.ReclaimInterval {
		return false
	}
	s.lastReclaim = time.Now()
	return true
}

// reclaim usa XPENDING IDLE + XCLAIM; XAUTOCLAIM no es compatible con el
// formato de respuesta de Redis 7 en este cliente.
func (s *Source) reclaim(ctx context.Context) ([]ingestDomain.RawMessage, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.opts.Stream,
		Group:  s.opts.Group,
		Idle:   s.opts.ReclaimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  s.opts.Count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &ingestDomain.TransportError{Op: "xpending", Err: err}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.opts.Stream,
		Group:    s.opts.Group,
		Consumer: s.opts.Consumer,
		MinIdle:  s.opts.ReclaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, &ingestDomain.TransportError{Op: "xclaim", Err: err}
	}

	out := make([]ingestDomain.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toRawMessage(m))
	}
	if len(out) > 0 {
		s.log.Info("Reclaimed idle pending messages",
			zap.Int("count", len(out)),
			zap.String("consumer", s.opts.Consumer))
	}
	return out, nil
}

func (s *Source) Ack(ctx context.Context, id string) error {
	if err := s.client.XAck(ctx, s.opts.Stream, s.opts.Group, id).Err(); err != nil {
		return &ingestDomain.TransportError{Op: "xack", Err: err}
	}
	return nil
}

func (s *Source) Deliveries(ctx context.Context, id string) (int64, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.opts.Stream,
		Group:  s.opts.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, &ingestDomain.TransportError{Op: "xpending", Err: err}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount, nil
}

func (s *Source) DeadLetter(ctx context.Context, msg ingestDomain.RawMessage, cause error) error {
	values := make(map[string]interface{}, len(msg.Fields)+3)
	for k, v := range msg.Fields {
		values[k] = v
	}
	values["source_id"] = msg.ID
	values["error"] = fmt.Sprint(cause)
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.opts.DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		return &ingestDomain.TransportError{Op: "xadd dead-letter", Err: err}
	}
	return nil
}

// toRawMessage normaliza los valores a texto: según el cliente y el
// publicador pueden llegar como string o como []byte.
func toRawMessage(m redis.XMessage) ingestDomain.RawMessage {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case []byte:
			fields[k] = string(val)
		case nil:
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return ingestDomain.RawMessage{ID: m.ID, Fields: fields}
}
