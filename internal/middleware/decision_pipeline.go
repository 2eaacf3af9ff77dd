package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
)

// DecisionPipeline sits between the confluence use case and the decision
// store. It validates decisions, writes them through, and buffers the ones
// the store rejected so a background loop can retry them with backoff.
type DecisionPipeline struct {
	store   domrepo.DecisionStore
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.WeightedConfidence
	stopCh  chan struct{}
	done    chan struct{}
	started bool
	mu      sync.Mutex

	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*DecisionPipeline)

// WithBufferSize sets the retry buffer size used while the store is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *DecisionPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff bounds the delay between retries of a failing write.
func WithBackoff(lo, hi time.Duration) PipelineOption {
	return func(p *DecisionPipeline) {
		if lo > 0 {
			p.backoffMin = lo
		}
		if hi >= p.backoffMin {
			p.backoffMax = hi
		}
	}
}

// NewDecisionPipeline creates a new pipeline; metrics may be nil.
func NewDecisionPipeline(store domrepo.DecisionStore, metrics domrepo.Metrics, opts ...PipelineOption) *DecisionPipeline {
	p := &DecisionPipeline{
		store:      store,
		metrics:    metrics,
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.WeightedConfidence, p.bufSize)
	return p
}

// Start launches background flushing of buffered decisions.
func (p *DecisionPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case d := <-p.bufCh:
				if err := p.store.SaveDecision(ctx, d); err != nil {
					p.recordError("pipeline_flush")
					backoff = min(2*backoff, p.backoffMax)
					p.requeue(d)
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					continue
				}
				backoff = p.backoffMin
			}
		}
	}()
}

// Stop stops the background flushing and makes one last pass over the
// buffer within ctx. Decisions still buffered afterwards are dropped.
func (p *DecisionPipeline) Stop(ctx context.Context) int {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return 0
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done

	dropped := 0
	for {
		select {
		case d := <-p.bufCh:
			if ctx.Err() != nil || p.store.SaveDecision(ctx, d) != nil {
				dropped++
			}
		default:
			if dropped > 0 {
				p.recordError("pipeline_buffer_drop")
			}
			return dropped
		}
	}
}

// Pending is the number of decisions waiting for a retry.
func (p *DecisionPipeline) Pending() int { return len(p.bufCh) }

// SaveDecision validates and forwards d, buffering it on downstream errors.
func (p *DecisionPipeline) SaveDecision(ctx context.Context, d *models.WeightedConfidence) error {
	start := time.Now()
	if err := validateDecision(d); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if err := p.store.SaveDecision(ctx, d); err != nil {
		p.recordError("pipeline_process")
		if !p.requeue(d) {
			return fmt.Errorf("pipeline downstream: %w", err)
		}
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

// LatestDecisions reads straight from the store.
func (p *DecisionPipeline) LatestDecisions(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.WeightedConfidence, error) {
	return p.store.LatestDecisions(ctx, symbol, tf, n)
}

func (p *DecisionPipeline) requeue(d *models.WeightedConfidence) bool {
	select {
	case p.bufCh <- d:
		return true
	default:
		p.recordError("pipeline_buffer_full")
		return false
	}
}

func (p *DecisionPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateDecision(d *models.WeightedConfidence) error {
	if d == nil {
		return fmt.Errorf("decision nil")
	}
	if d.ID == "" {
		return fmt.Errorf("decision id empty")
	}
	if d.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if math.IsNaN(d.OverallConfidence) || d.OverallConfidence < 0 || d.OverallConfidence > 1 {
		return fmt.Errorf("confidence %v out of range", d.OverallConfidence)
	}
	return nil
}

var _ domrepo.DecisionStore = (*DecisionPipeline)(nil)
