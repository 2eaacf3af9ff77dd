package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	applogger "FinFusion/pkg/logger"
)

// HandlerFunc handles one fetched record.
type HandlerFunc func(ctx context.Context, m kafka.Message) error

// Middleware wraps a HandlerFunc. Every attempt of a record passes through
// the full chain.
type Middleware func(next HandlerFunc) HandlerFunc

// chain applies mws so the first one is outermost.
func chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

type traceKey struct{}

const traceHeader = "trace_id"

// TraceIDFrom returns the trace id stamped by Trace, or "".
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}

// Trace carries the producer's trace_id header into the context, or a
// fresh id when the record has none.
func Trace() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m kafka.Message) error {
			id := ""
			for _, h := range m.Headers {
				if h.Key == traceHeader && len(h.Value) > 0 {
					id = string(h.Value)
					break
				}
			}
			if id == "" {
				id = uuid.NewString()
			}
			return next(context.WithValue(ctx, traceKey{}, id), m)
		}
	}
}

// Recover turns a handler panic into a permanent failure so the record is
// dead-lettered instead of killing the lane.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m kafka.Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			return next(ctx, m)
		}
	}
}

// Log reports failed attempts and successes slower than slow.
func Log(l *applogger.Logger, slow time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m kafka.Message) error {
			start := time.Now()
			err := next(ctx, m)
			d := time.Since(start)
			fields := []applogger.Field{
				applogger.String("topic", m.Topic),
				applogger.String("key", string(m.Key)),
				applogger.String("trace_id", TraceIDFrom(ctx)),
				applogger.Int("partition", m.Partition),
				applogger.Int64("offset", m.Offset),
			}
			switch {
			case err != nil:
				l.Warn("kafka: attempt failed", append(fields, applogger.Error(err))...)
			case slow > 0 && d > slow:
				l.Warn("kafka: slow record", append(fields, applogger.Duration("duration_ms", d))...)
			}
			return err
		}
	}
}
