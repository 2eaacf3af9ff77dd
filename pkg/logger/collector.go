package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships error digests. A typed Kafka topic satisfies it.
type Publisher interface {
	Publish(ctx context.Context, digests ...ErrorDigest) error
}

type CollectionConfig struct {
	Interval    time.Duration // flush period
	MaxDistinct int           // distinct digests held before an early flush
	Publisher   Publisher
}

// ErrorDigest folds repeated errors from one call site with identical
// fields into a single counted entry.
type ErrorDigest struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Symbol is the digest's partition key; errors outside a symbol's cycle
// have none.
func (d ErrorDigest) Symbol() string {
	s, _ := d.Fields["symbol"].(string)
	return s
}

type LogCollector struct {
	cfg      CollectionConfig
	mu       sync.Mutex
	pending  map[string]*ErrorDigest
	stop     chan struct{}
	loop     sync.WaitGroup
	inflight sync.WaitGroup
	fallback zerolog.Logger
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxDistinct <= 0 {
		cfg.MaxDistinct = 100
	}
	c := &LogCollector{
		cfg:      cfg,
		pending:  make(map[string]*ErrorDigest),
		stop:     make(chan struct{}),
		fallback: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	c.loop.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	// fmt prints maps with sorted keys, so equal field sets give equal keys
	key := fmt.Sprint(level, "|", caller, "|", message, "|", fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.pending[key]; ok {
		d.Count++
		d.LastSeen = now
		return
	}
	c.pending[key] = &ErrorDigest{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.pending) >= c.cfg.MaxDistinct {
		c.flushLocked()
	}
}

func (c *LogCollector) run() {
	defer c.loop.Done()
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *LogCollector) flushLocked() {
	if len(c.pending) == 0 {
		return
	}
	batch := make([]ErrorDigest, 0, len(c.pending))
	for _, d := range c.pending {
		batch = append(batch, *d)
	}
	c.pending = make(map[string]*ErrorDigest)
	if c.cfg.Publisher == nil {
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.Publish(ctx, batch...); err != nil {
			c.fallback.Error().Err(err).Int("digests", len(batch)).Msg("publish error digests")
		}
	}()
}

// Pending reports how many distinct digests wait for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close flushes what is left and waits for publishes to finish.
func (c *LogCollector) Close() {
	close(c.stop)
	c.loop.Wait()
	c.inflight.Wait()
}
