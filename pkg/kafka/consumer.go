package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "FinFusion/pkg/logger"
)

// ErrNonRetryable marks handler errors that retries cannot fix. The record
// is dead-lettered right away.
var ErrNonRetryable = errors.New("non-retryable")

// Permanent wraps err so the consumer skips retries for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}

// MessageHandler handles the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in one consumer group. Each record is
// routed to a lane by topic and partition; a lane handles its records one
// at a time and commits each offset once the record is handled or
// dead-lettered.
type Consumer struct {
	cfg      ReaderConfig
	log      *applogger.Logger
	mws      []Middleware
	handlers map[string]HandlerFunc
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      *kafka.Writer

	ctx      context.Context
	cancel   context.CancelFunc
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer validates cfg. mws wrap every handler, outermost first.
func NewConsumer(cfg ReaderConfig, l *applogger.Logger, mws ...Middleware) (*Consumer, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      l,
		mws:      mws,
		handlers: make(map[string]HandlerFunc),
		readers:  make(map[string]*kafka.Reader),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler binds h to its topic. A second handler for the same
// topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = chain(func(ctx context.Context, m kafka.Message) error {
		return h.Handle(ctx, m.Value)
	}, c.mws...)
}

// Start opens one reader per registered topic and the lane workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.lanes = make([]chan kafka.Message, c.cfg.Lanes)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.LaneBuffer)
		c.workers.Add(1)
		go c.work(c.lanes[i])
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer: started",
		applogger.String("group_id", c.cfg.GroupID),
		applogger.Int("lanes", c.cfg.Lanes),
		applogger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop halts fetching, waits for the lanes to wind down and closes the
// readers. Records in flight or still queued are left uncommitted and are
// redelivered to the group.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.fetchers.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq writer", applogger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	for {
		m, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			if !c.sleep(c.cfg.BackoffMin) {
				return
			}
			continue
		}
		partitionLag.WithLabelValues(topic, strconv.Itoa(m.Partition)).Set(float64(m.HighWaterMark - m.Offset - 1))
		select {
		case c.lanes[c.laneFor(m.Topic, m.Partition)] <- m:
		case <-c.ctx.Done():
			return
		}
	}
}

// laneFor keeps a partition on one lane.
func (c *Consumer) laneFor(topic string, partition int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(len(c.lanes)))
}

func (c *Consumer) work(in <-chan kafka.Message) {
	defer c.workers.Done()
	for m := range in {
		c.process(m)
	}
}

// process runs one record to a terminal outcome and commits it. A record
// interrupted by shutdown is not committed.
func (c *Consumer) process(m kafka.Message) {
	h, ok := c.handlers[m.Topic]
	if !ok {
		consumedRecords.WithLabelValues(m.Topic, "dropped").Inc()
		return
	}
	start := time.Now()
	stopped, err := c.attempt(h, m)
	handleSeconds.WithLabelValues(m.Topic).Observe(time.Since(start).Seconds())
	if stopped {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "dead_letter"
		if c.dlq == nil {
			outcome = "skipped"
		}
		c.log.Error("kafka consumer: record failed",
			applogger.String("topic", m.Topic),
			applogger.String("key", string(m.Key)),
			applogger.Int64("offset", m.Offset),
			applogger.Error(err),
		)
		if !c.deadLetter(m, err) {
			// no dead-letter copy; leave the offset for redelivery
			consumedRecords.WithLabelValues(m.Topic, "dropped").Inc()
			return
		}
	}
	consumedRecords.WithLabelValues(m.Topic, outcome).Inc()
	c.commit(m)
}

// attempt calls h up to 1+RetryMax times with jittered exponential backoff.
// stopped is true when shutdown cut the record short.
func (c *Consumer) attempt(h HandlerFunc, m kafka.Message) (stopped bool, err error) {
	for n := 0; ; n++ {
		err = h(c.ctx, m)
		if err != nil && c.ctx.Err() != nil {
			return true, err
		}
		if err == nil || errors.Is(err, ErrNonRetryable) || n >= c.cfg.RetryMax {
			return false, err
		}
		consumeRetries.WithLabelValues(m.Topic).Inc()
		if !c.sleep(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, n+1)) {
			return true, err
		}
	}
}

// deadLetter reports whether the record is safe to commit. Without a
// dead-letter topic failed records are skipped.
func (c *Consumer) deadLetter(m kafka.Message, cause error) bool {
	if c.dlq == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
			kafka.Header{Key: "source_partition", Value: []byte(strconv.Itoa(m.Partition))},
			kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(m.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("kafka consumer: write dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(m kafka.Message) {
	r := c.readers[m.Topic]
	if r == nil {
		return
	}
	var err error
	for n := 1; n <= 3; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, m)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, n))
	}
	c.log.Error("kafka consumer: commit", applogger.String("topic", m.Topic), applogger.Int64("offset", m.Offset), applogger.Error(err))
}

// sleep waits d and reports false when the consumer is stopping.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// backoff doubles from lo per attempt up to hi, minus up to half as jitter.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := hi
	if attempt < 32 {
		if exp := lo << uint(attempt-1); exp > 0 && exp < hi {
			d = exp
		}
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}
