package kafka

import (
	"errors"
	"time"

	"github.com/creasty/defaults"
)

// WriterConfig configures the writer shared by every typed topic.
type WriterConfig struct {
	Brokers []string
	// RequiredAcks is -1 for all replicas, 1 for the leader, 0 for none.
	RequiredAcks int
	Compression  string        `default:"snappy"`
	MaxAttempts  int           `default:"3"`
	BatchSize    int           `default:"100"`
	BatchBytes   int64         `default:"1048576"`
	Linger       time.Duration `default:"10ms"`
	WriteTimeout time.Duration `default:"10s"`
	ReadTimeout  time.Duration `default:"10s"`
	Async        bool
}

// ReaderConfig configures the candle consumer. Messages of one partition
// always land on the same lane, so bars of a symbol are handled in order.
type ReaderConfig struct {
	Brokers    []string
	GroupID    string        `default:"finfusion-engine"`
	Lanes      int           `default:"4"`
	LaneBuffer int           `default:"64"`
	RetryMax   int
	BackoffMin time.Duration `default:"100ms"`
	BackoffMax time.Duration `default:"5s"`
	DLQTopic   string
	MinBytes   int           `default:"1"`
	MaxBytes   int           `default:"10485760"`
}

var errNoBrokers = errors.New("kafka: brokers are required")

func (c *WriterConfig) normalize() error {
	if len(c.Brokers) == 0 {
		return errNoBrokers
	}
	return defaults.Set(c)
}

func (c *ReaderConfig) normalize() error {
	if len(c.Brokers) == 0 {
		return errNoBrokers
	}
	if err := defaults.Set(c); err != nil {
		return err
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	return nil
}
