package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer owns the Kafka writer. Values are published through typed
// topics built with NewTopic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates the writer. Messages are hashed by key so one
// symbol's records keep their order within a partition.
func NewProducer(cfg WriterConfig) (*Producer, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}}, nil
}

func (p *Producer) write(ctx context.Context, topic string, msgs []kafka.Message) error {
	start := time.Now()
	err := p.writer.WriteMessages(ctx, msgs...)
	observePublish(topic, msgs, time.Since(start), err)
	return err
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Topic publishes values of one type as JSON to one Kafka topic, keyed by
// the value's partition key.
type Topic[T any] struct {
	producer *Producer
	name     string
	key      func(T) string
}

// NewTopic binds a topic name and key function to p.
func NewTopic[T any](p *Producer, name string, key func(T) string) *Topic[T] {
	return &Topic[T]{producer: p, name: name, key: key}
}

func (t *Topic[T]) Name() string { return t.name }

// Publish writes vs in one call. Nothing is sent when any value fails to
// encode.
func (t *Topic[T]) Publish(ctx context.Context, vs ...T) error {
	if len(vs) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, len(vs))
	for i, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", t.name, err)
		}
		msgs[i] = kafka.Message{Topic: t.name, Value: b, Time: now}
		if t.key != nil {
			if k := t.key(v); k != "" {
				msgs[i].Key = []byte(k)
			}
		}
	}
	return t.producer.write(ctx, t.name, msgs)
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}
