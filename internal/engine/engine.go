// Package engine composes the threshold controller, scoring matrix, predictor
// and fusion into one confluence engine per symbol/timeframe.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine/fusion"
	"FinFusion/internal/engine/nkn"
	"FinFusion/internal/engine/scoring"
	"FinFusion/internal/engine/thresholds"
)

// ErrNoCandles is the one fatal cycle error: there is nothing to evaluate.
var ErrNoCandles = errors.New("no candles supplied")

// Trail entry types added by the engine in front of the fusion adjustments.
const (
	AdjPredictionsUnavailable = "predictions_unavailable"
	AdjPatternsUnavailable    = "patterns_unavailable"
)

// CycleInput is the caller-owned history for one cycle.
type CycleInput struct {
	Samples    []models.IndicatorSample // oldest first
	Candles    []models.Candle          // oldest first
	Conditions models.MarketConditions
	Zones      []models.ConfluenceZone
	Now        time.Time
}

// CycleResult carries every intermediate output of a cycle.
type CycleResult struct {
	Symbol          string                       `json:"symbol"`
	Timeframe       string                       `json:"timeframe"`
	Thresholds      models.AdaptiveThresholds    `json:"thresholds"`
	Matrix          models.IndicatorMatrix       `json:"matrix"`
	Predictions     []models.NKNPrediction       `json:"predictions"`
	Patterns        []models.NKNPatternResult    `json:"patterns"`
	Decision        models.WeightedConfidence    `json:"decision"`
	Adjusted        []models.ThresholdAdjustment `json:"threshold_adjustments,omitempty"`
	TrainingStarted bool                         `json:"training_started"`
	Duration        time.Duration                `json:"duration"`
}

// Engine serializes cycles for one symbol/timeframe. Engines share nothing.
type Engine struct {
	symbol    string
	timeframe string

	mu         sync.Mutex
	cfg        Config
	thresholds *thresholds.Controller
	matrix     *scoring.Matrix
	predictor  *nkn.Predictor
	fusion     *fusion.Fusion
	last       *CycleResult

	collector   Collector
	now         func() time.Time
	trainGate   func(Key) bool
	training    atomic.Bool
	lastTrained atomic.Int64 // unix nanos of the last started run

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithCollector routes engine events to c.
func WithCollector(c Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithTrainGate lets the host veto automatic training runs, e.g. to rate
// limit them. Manual Train calls are not gated.
func WithTrainGate(allow func(Key) bool) Option {
	return func(e *Engine) { e.trainGate = allow }
}

// WithClock replaces the wall clock for every component.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(symbol, timeframe string, cfg Config, opts ...Option) *Engine {
	cfg = cfg.forTimeframe(timeframe)
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		symbol:     symbol,
		timeframe:  timeframe,
		cfg:        cfg,
		thresholds: thresholds.NewController(cfg.Thresholds),
		matrix:     scoring.NewMatrix(cfg.Scoring),
		predictor:  nkn.NewPredictor(cfg.Predictor),
		fusion:     fusion.NewFusion(cfg.Fusion),
		now:        time.Now,
		bgCtx:      ctx,
		bgCancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.thresholds.SetClock(e.now)
	e.fusion.SetClock(e.now)
	return e
}

func (e *Engine) Symbol() string    { return e.symbol }
func (e *Engine) Timeframe() string { return e.timeframe }

func (e *Engine) emit(typ string, at time.Time, fields map[string]interface{}) {
	if e.collector == nil {
		return
	}
	e.collector.Collect(Event{Type: typ, Symbol: e.symbol, Timeframe: e.timeframe, Time: at, Fields: fields})
}

// Cycle runs thresholds, scoring, prediction and fusion in order. Only a missing
// candle history or a cancelled context fails the cycle; everything else
// degrades into the decision's adjustment trail.
func (e *Engine) Cycle(ctx context.Context, in CycleInput) (*CycleResult, error) {
	if len(in.Candles) == 0 {
		return nil, ErrNoCandles
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()
	now := in.Now
	if now.IsZero() {
		now = start
	}

	th := e.thresholds.Update(in.Candles, in.Conditions)
	adjusted := e.thresholds.Recent()
	for _, a := range adjusted {
		e.emit(EventThresholdAdjusted, now, map[string]interface{}{
			"indicator": a.Indicator,
			"from":      a.OriginalValue,
			"to":        a.AdjustedValue,
			"factor":    a.AdjustmentFactor,
		})
	}

	matrix := e.matrix.Evaluate(in.Samples, in.Candles, th)

	res := &CycleResult{
		Symbol:     e.symbol,
		Timeframe:  e.timeframe,
		Thresholds: th,
		Matrix:     matrix,
		Adjusted:   adjusted,
	}

	var notes []models.ConfidenceAdjustment
	if e.predictor.Enabled() {
		preds, err := e.predictor.GeneratePredictions(ctx, in.Candles, 0)
		if err != nil {
			if ctxErr(err) {
				return nil, err
			}
			notes = append(notes, models.ConfidenceAdjustment{Type: AdjPredictionsUnavailable, Reason: err.Error()})
			e.emit(EventPredictorSkipped, now, map[string]interface{}{"reason": err.Error()})
		}
		pats, err := e.predictor.RecognizePatterns(ctx, in.Candles)
		if err != nil {
			if ctxErr(err) {
				return nil, err
			}
			notes = append(notes, models.ConfidenceAdjustment{Type: AdjPatternsUnavailable, Reason: err.Error()})
		}
		res.Predictions, res.Patterns = preds, pats
		res.TrainingStarted = e.maybeTrain(in.Candles, now)
	}

	decision := e.fusion.Calculate(fusion.Input{
		Symbol:      e.symbol,
		Timeframe:   e.timeframe,
		Matrix:      matrix,
		Thresholds:  th,
		Conditions:  in.Conditions,
		Zones:       in.Zones,
		Candles:     in.Candles,
		Predictions: res.Predictions,
		Patterns:    res.Patterns,
		Now:         now,
	})
	if len(notes) > 0 {
		decision.Adjustments = append(notes, decision.Adjustments...)
	}
	res.Decision = decision
	res.Duration = e.now().Sub(start)
	e.last = res

	e.emit(EventCycleCompleted, now, map[string]interface{}{
		"confidence":  decision.OverallConfidence,
		"signal":      string(decision.Signal),
		"risk":        string(decision.RiskLevel),
		"reliability": decision.Reliability,
		"adjustments": len(decision.Adjustments),
		"duration":    res.Duration,
	})
	return res, nil
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// maybeTrain starts a background run when auto-training is on and the network
// is missing or older than RetrainInterval. At most one run is in flight.
func (e *Engine) maybeTrain(candles []models.Candle, now time.Time) bool {
	if !e.cfg.AutoTrain || len(candles) < e.predictor.Config().TrainingPeriod {
		return false
	}
	if e.predictor.Trained() {
		last := time.Unix(0, e.lastTrained.Load())
		if now.Sub(last) < e.cfg.RetrainInterval {
			return false
		}
	}
	if e.training.Load() {
		return false
	}
	if e.trainGate != nil && !e.trainGate(Key{Symbol: e.symbol, Timeframe: e.timeframe}) {
		e.emit(EventPredictorSkipped, now, map[string]interface{}{"reason": "training throttled"})
		return false
	}
	return e.startTraining(candles, now)
}

func (e *Engine) startTraining(candles []models.Candle, now time.Time) bool {
	if !e.training.CompareAndSwap(false, true) {
		return false
	}
	e.lastTrained.Store(now.UnixNano())
	e.emit(EventTrainingStarted, now, map[string]interface{}{"candles": len(candles)})

	ch := e.predictor.TrainAsync(e.bgCtx, candles)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		out := <-ch
		e.training.Store(false)
		e.emitTraining(out.Result, out.Err)
	}()
	return true
}

func (e *Engine) emitTraining(res nkn.TrainingResult, err error) {
	if err != nil {
		e.emit(EventTrainingFailed, e.now(), map[string]interface{}{"error": err.Error()})
		return
	}
	e.emit(EventTrainingFinished, e.now(), map[string]interface{}{
		"epochs":           res.Epochs,
		"train_error":      res.TrainError,
		"validation_error": res.ValidationError,
		"truncated":        res.Truncated,
		"skipped":          res.Skipped,
		"duration":         res.Duration,
	})
}

// Train runs a blocking training pass, e.g. on operator request. It does not
// hold the cycle lock, so cycles keep using the previous network meanwhile.
func (e *Engine) Train(ctx context.Context, candles []models.Candle) (nkn.TrainingResult, error) {
	if !e.training.CompareAndSwap(false, true) {
		return nkn.TrainingResult{}, fmt.Errorf("training already running for %s/%s", e.symbol, e.timeframe)
	}
	defer e.training.Store(false)

	now := e.now()
	e.lastTrained.Store(now.UnixNano())
	e.emit(EventTrainingStarted, now, map[string]interface{}{"candles": len(candles), "manual": true})
	res, err := e.predictor.Train(ctx, candles)
	e.emitTraining(res, err)
	return res, err
}

// Training reports whether a training run is in flight.
func (e *Engine) Training() bool { return e.training.Load() }

func (e *Engine) Predictions(ctx context.Context, candles []models.Candle, horizon int) ([]models.NKNPrediction, error) {
	return e.predictor.GeneratePredictions(ctx, candles, horizon)
}

func (e *Engine) Patterns(ctx context.Context, candles []models.Candle) ([]models.NKNPatternResult, error) {
	return e.predictor.RecognizePatterns(ctx, candles)
}

// NetworkState is nil until the first training run commits.
func (e *Engine) NetworkState() *models.NetworkState { return e.predictor.State() }

func (e *Engine) Thresholds() models.AdaptiveThresholds     { return e.thresholds.Current() }
func (e *Engine) BaseThresholds() models.AdaptiveThresholds { return e.thresholds.Base() }

func (e *Engine) ThresholdHistory() []models.ThresholdAdjustment { return e.thresholds.History() }

// ResetThresholds waits for any running cycle, then restores the base levels.
func (e *Engine) ResetThresholds() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds.Reset()
}

// RecordOutcome feeds a realized decision quality in [0,1] back into fusion.
func (e *Engine) RecordOutcome(score float64) { e.fusion.RecordOutcome(score) }

// Performance is the rolling outcome mean and count.
func (e *Engine) Performance() (float64, int) { return e.fusion.Performance() }

// Last returns the result of the most recent successful cycle, or nil.
func (e *Engine) Last() *CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ApplyConfig hot-reloads every component between cycles. Components whose new
// config is invalid keep their previous config; the errors are joined.
func (e *Engine) ApplyConfig(cfg Config) error {
	cfg = cfg.forTimeframe(e.timeframe)

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.thresholds.ApplyConfig(cfg.Thresholds); err != nil {
		errs = append(errs, err)
		cfg.Thresholds = e.cfg.Thresholds
	}
	if err := cfg.Scoring.Validate(); err != nil {
		errs = append(errs, err)
		cfg.Scoring = e.cfg.Scoring
	} else {
		e.matrix = scoring.NewMatrix(cfg.Scoring)
	}
	if err := e.predictor.ApplyConfig(cfg.Predictor); err != nil {
		errs = append(errs, err)
		cfg.Predictor = e.cfg.Predictor
	}
	if err := e.fusion.ApplyConfig(cfg.Fusion); err != nil {
		errs = append(errs, err)
		cfg.Fusion = e.cfg.Fusion
	}
	e.cfg = cfg
	return errors.Join(errs...)
}

// Close cancels background training and waits for it to exit.
func (e *Engine) Close() {
	e.bgCancel()
	e.bg.Wait()
}
