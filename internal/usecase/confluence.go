package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	domsvc "FinFusion/internal/domain/service"
	"FinFusion/internal/engine"
	svcmetrics "FinFusion/internal/service/metrics"
	"FinFusion/pkg/cache"
	applogger "FinFusion/pkg/logger"
)

// Broadcaster pushes decisions to live subscribers.
type Broadcaster interface {
	Broadcast(d *models.WeightedConfidence)
}

// ConfluenceDeps lists the collaborators of ConfluenceUseCase. Registry,
// History and Deriver are required; the rest may be nil.
type ConfluenceDeps struct {
	Registry    *engine.Registry
	History     *History
	Deriver     domsvc.ConditionsDeriver
	Store       domrepo.FeatureStore
	Writer      domrepo.BarWriter
	Decisions   domrepo.DecisionStore
	Publisher   domrepo.DecisionPublisher
	Cache       cache.Store
	Broadcaster Broadcaster
	Metrics     domrepo.Metrics
	Logger      *applogger.Logger
}

// ConfluenceUseCase turns ingested bars into decisions and serves the
// engines' state to the API.
type ConfluenceUseCase struct {
	ConfluenceDeps
	decisionTTL time.Duration
	warmupSize  int
	now         func() time.Time
}

func NewConfluenceUseCase(deps ConfluenceDeps, decisionTTL time.Duration, warmupSize int) *ConfluenceUseCase {
	if deps.Logger == nil {
		deps.Logger = applogger.Nop()
	}
	if decisionTTL <= 0 {
		decisionTTL = 10 * time.Minute
	}
	return &ConfluenceUseCase{ConfluenceDeps: deps, decisionTTL: decisionTTL, warmupSize: warmupSize, now: time.Now}
}

// DecisionKey is the cache key of the latest decision for symbol/timeframe.
func DecisionKey(symbol, timeframe string) string {
	return cache.Key("decision", symbol, timeframe)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func keyOf(q models.SymbolQuery) engine.Key {
	return engine.Key{Symbol: NormalizeSymbol(q.Symbol), Timeframe: string(domrepo.NormalizeTimeframe(q.Timeframe))}
}

func validateBar(bar *models.Bar) error {
	bar.Symbol = NormalizeSymbol(bar.Symbol)
	if bar.Symbol == "" {
		bar.Symbol = NormalizeSymbol(bar.Candle.Symbol)
	}
	if bar.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidBar)
	}
	if bar.Timeframe == "" {
		bar.Timeframe = bar.Candle.Timeframe
	}
	if bar.Timeframe == "" {
		bar.Timeframe = string(domrepo.DefaultTimeframe)
	}
	if !domrepo.Timeframe(bar.Timeframe).Valid() {
		return fmt.Errorf("%w: timeframe %q", ErrInvalidBar, bar.Timeframe)
	}
	c := &bar.Candle
	if c.Bucket.IsZero() {
		return fmt.Errorf("%w: missing bucket", ErrInvalidBar)
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: non-finite or negative price/volume", ErrInvalidBar)
		}
	}
	if c.High < c.Low || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("%w: inconsistent OHLC", ErrInvalidBar)
	}
	c.Symbol, c.Timeframe = bar.Symbol, bar.Timeframe
	return nil
}

// Ingest runs one engine cycle over the history extended by bar and delivers
// the decision. The bar is committed to history only once the cycle succeeds,
// so a redelivered bar after a failed cycle is not taken for stale.
func (uc *ConfluenceUseCase) Ingest(ctx context.Context, bar models.Bar) (*engine.CycleResult, error) {
	if err := validateBar(&bar); err != nil {
		uc.recordError("ingest_invalid")
		return nil, err
	}
	snap, ok := uc.History.Peek(bar)
	if !ok {
		return nil, ErrStaleBar
	}
	k := engine.Key{Symbol: bar.Symbol, Timeframe: bar.Timeframe}
	res, err := uc.run(ctx, k, snap)
	if err != nil {
		return nil, err
	}
	if !uc.History.Append(bar) {
		// a concurrent duplicate or newer bar was committed first
		return nil, ErrStaleBar
	}
	if uc.Writer != nil {
		start := time.Now()
		if err := uc.Writer.AppendBar(ctx, bar); err != nil {
			uc.recordError("bar_store")
			uc.Logger.Error("store bar", applogger.String("symbol", bar.Symbol), applogger.Error(err))
		} else if uc.Metrics != nil {
			uc.Metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
		}
	}
	if uc.Metrics != nil {
		uc.Metrics.RecordLatency("ingest_e2e_seconds", uc.now().Sub(bar.Time()).Seconds())
	}
	uc.deliver(ctx, &res.Decision)
	return res, nil
}

func (uc *ConfluenceUseCase) cycle(ctx context.Context, k engine.Key) (*engine.CycleResult, error) {
	snap, ok := uc.History.Snapshot(k)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	return uc.run(ctx, k, snap)
}

func (uc *ConfluenceUseCase) run(ctx context.Context, k engine.Key, snap Snapshot) (*engine.CycleResult, error) {
	var cond models.MarketConditions
	if snap.Conditions != nil {
		cond = *snap.Conditions
	} else {
		cond = uc.Deriver.Derive(k.Timeframe, snap.Candles)
	}
	res, err := uc.Registry.Get(k.Symbol, k.Timeframe).Cycle(ctx, engine.CycleInput{
		Samples:    snap.Samples,
		Candles:    snap.Candles,
		Conditions: cond,
		Zones:      snap.Zones,
		Now:        uc.now(),
	})
	if err != nil {
		uc.recordError("cycle")
		return nil, fmt.Errorf("cycle %s: %w", k, err)
	}
	return res, nil
}

// deliver fans a decision out; every sink is best effort.
func (uc *ConfluenceUseCase) deliver(ctx context.Context, d *models.WeightedConfidence) {
	log := uc.Logger.With(applogger.String("symbol", d.Symbol), applogger.String("timeframe", d.Timeframe))
	if uc.Cache != nil {
		if err := cache.SetJSON(ctx, uc.Cache, DecisionKey(d.Symbol, d.Timeframe), d, uc.decisionTTL); err != nil {
			uc.recordError("cache_set")
			log.Warn("cache decision", applogger.Error(err))
		}
	}
	if uc.Publisher != nil {
		start := time.Now()
		if err := uc.Publisher.Publish(ctx, d); err != nil {
			uc.recordError("decision_publish")
			log.Error("publish decision", applogger.Error(err))
		} else if uc.Metrics != nil {
			uc.Metrics.RecordMessageSent("kafka", d.Symbol)
			uc.Metrics.RecordLatency("decision_publish_seconds", time.Since(start).Seconds())
		}
	}
	if uc.Decisions != nil {
		if err := uc.Decisions.SaveDecision(ctx, d); err != nil {
			uc.recordError("decision_store")
			log.Error("store decision", applogger.Error(err))
		} else if uc.Metrics != nil {
			uc.Metrics.RecordMessageSent("clickhouse", d.Symbol)
		}
	}
	if uc.Broadcaster != nil {
		uc.Broadcaster.Broadcast(d)
	}
}

func (uc *ConfluenceUseCase) recordError(kind string) {
	if uc.Metrics != nil {
		uc.Metrics.RecordError(kind)
	}
}

// engine returns the engine for k, creating it only when history exists.
func (uc *ConfluenceUseCase) engine(k engine.Key) (*engine.Engine, error) {
	if e, ok := uc.Registry.Lookup(k.Symbol, k.Timeframe); ok {
		return e, nil
	}
	if uc.History.Len(k) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	return uc.Registry.Get(k.Symbol, k.Timeframe), nil
}

// Confluence returns the latest decision. Without Refresh it is served from
// the cache or the engine's last cycle; otherwise a new cycle runs over the
// stored history.
func (uc *ConfluenceUseCase) Confluence(ctx context.Context, req models.ConfluenceRequest) (*models.WeightedConfidence, error) {
	k := keyOf(req.SymbolQuery)
	if !req.Refresh {
		if uc.Cache != nil {
			d, err := cache.GetJSON[models.WeightedConfidence](ctx, uc.Cache, DecisionKey(k.Symbol, k.Timeframe))
			if err == nil {
				svcmetrics.DecisionSource.WithLabelValues("cache").Inc()
				return &d, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				uc.Logger.Warn("decision cache", applogger.String("key", k.String()), applogger.Error(err))
			}
		}
		if e, ok := uc.Registry.Lookup(k.Symbol, k.Timeframe); ok {
			if last := e.Last(); last != nil {
				svcmetrics.DecisionSource.WithLabelValues("engine").Inc()
				d := last.Decision
				return &d, nil
			}
		}
	}
	if uc.History.Len(k) == 0 {
		if err := uc.warm(ctx, k); err != nil {
			return nil, err
		}
	}
	res, err := uc.cycle(ctx, k)
	if err != nil {
		return nil, err
	}
	uc.deliver(ctx, &res.Decision)
	svcmetrics.DecisionSource.WithLabelValues("cycle").Inc()
	return &res.Decision, nil
}

// Thresholds reports the controller's current, base and recent levels.
func (uc *ConfluenceUseCase) Thresholds(q models.SymbolQuery) (*models.ThresholdsView, error) {
	k := keyOf(q)
	e, err := uc.engine(k)
	if err != nil {
		return nil, err
	}
	return &models.ThresholdsView{
		Symbol:    k.Symbol,
		Timeframe: k.Timeframe,
		Current:   e.Thresholds(),
		Base:      e.BaseThresholds(),
		History:   e.ThresholdHistory(),
	}, nil
}

func (uc *ConfluenceUseCase) ResetThresholds(q models.SymbolQuery) (*models.ThresholdsView, error) {
	k := keyOf(q)
	e, err := uc.engine(k)
	if err != nil {
		return nil, err
	}
	e.ResetThresholds()
	uc.Logger.Info("thresholds reset", applogger.String("symbol", k.Symbol), applogger.String("timeframe", k.Timeframe))
	return uc.Thresholds(q)
}

func (uc *ConfluenceUseCase) predictionsView(k engine.Key, e *engine.Engine) *models.PredictionsView {
	v := &models.PredictionsView{Symbol: k.Symbol, Timeframe: k.Timeframe, Training: e.Training()}
	if st := e.NetworkState(); st != nil {
		v.Trained = true
		at := st.TrainedAt
		v.TrainedAt = &at
	}
	return v
}

// Predictions forecasts req.Horizon steps from the stored candles.
func (uc *ConfluenceUseCase) Predictions(ctx context.Context, req models.PredictionsRequest) (*models.PredictionsView, error) {
	k := keyOf(req.SymbolQuery)
	e, err := uc.engine(k)
	if err != nil {
		return nil, err
	}
	snap, _ := uc.History.Snapshot(k)
	v := uc.predictionsView(k, e)
	preds, err := e.Predictions(ctx, snap.Candles, req.Horizon)
	if err != nil {
		return nil, err
	}
	v.Predictions = preds
	return v, nil
}

// Patterns scores the pattern library against the stored candles.
func (uc *ConfluenceUseCase) Patterns(ctx context.Context, q models.SymbolQuery) (*models.PredictionsView, error) {
	k := keyOf(q)
	e, err := uc.engine(k)
	if err != nil {
		return nil, err
	}
	snap, _ := uc.History.Snapshot(k)
	v := uc.predictionsView(k, e)
	pats, err := e.Patterns(ctx, snap.Candles)
	if err != nil {
		return nil, err
	}
	v.Patterns = pats
	return v, nil
}

// RecordOutcome feeds a realized decision score back into the engine.
func (uc *ConfluenceUseCase) RecordOutcome(req models.OutcomeRequest) (*models.PerformanceView, error) {
	k := keyOf(req.SymbolQuery)
	e, err := uc.engine(k)
	if err != nil {
		return nil, err
	}
	e.RecordOutcome(req.Score)
	avg, n := e.Performance()
	uc.Logger.Debug("outcome recorded",
		applogger.String("symbol", k.Symbol),
		applogger.String("decision_id", req.DecisionID),
		applogger.Float64("score", req.Score),
		applogger.Float64("average", avg),
	)
	return &models.PerformanceView{Symbol: k.Symbol, Timeframe: k.Timeframe, Average: avg, Samples: n}, nil
}

// LatestDecisions reads cached decisions; symbols missing from the cache
// fall back to the decision store. With no symbols every tracked engine of
// the timeframe is listed.
func (uc *ConfluenceUseCase) LatestDecisions(ctx context.Context, req models.LatestDecisionsRequest) ([]models.WeightedConfidence, error) {
	tf := string(domrepo.NormalizeTimeframe(req.Timeframe))
	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		symbols = append(symbols, NormalizeSymbol(s))
	}
	if len(symbols) == 0 {
		for _, k := range uc.Registry.Keys() {
			if k.Timeframe == tf {
				symbols = append(symbols, k.Symbol)
			}
		}
	}

	found := map[string]models.WeightedConfidence{}
	if uc.Cache != nil && len(symbols) > 0 {
		keys := make([]string, len(symbols))
		for i, s := range symbols {
			keys[i] = DecisionKey(s, tf)
		}
		cached, err := cache.GetManyJSON[models.WeightedConfidence](ctx, uc.Cache, keys...)
		if err != nil {
			uc.Logger.Warn("decision cache mget", applogger.Error(err))
		}
		for i, s := range symbols {
			if d, ok := cached[keys[i]]; ok {
				found[s] = d
			}
		}
	}

	out := make([]models.WeightedConfidence, 0, len(symbols))
	for _, s := range symbols {
		if d, ok := found[s]; ok {
			out = append(out, d)
			continue
		}
		if e, ok := uc.Registry.Lookup(s, tf); ok && e.Last() != nil {
			out = append(out, e.Last().Decision)
			continue
		}
		if uc.Decisions == nil {
			continue
		}
		ds, err := uc.Decisions.LatestDecisions(ctx, s, domrepo.Timeframe(tf), 1)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

func (uc *ConfluenceUseCase) warm(ctx context.Context, k engine.Key) error {
	if uc.Store == nil || uc.warmupSize <= 0 {
		return fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	tf := domrepo.Timeframe(k.Timeframe)
	candles, err := uc.Store.GetLatestNCandles(ctx, k.Symbol, uc.warmupSize, tf)
	if err != nil {
		return fmt.Errorf("warmup candles %s: %w", k, err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	samples, err := uc.Store.GetLatestNSamples(ctx, k.Symbol, uc.warmupSize, tf)
	if err != nil {
		return fmt.Errorf("warmup samples %s: %w", k, err)
	}
	uc.History.Seed(k, candles, samples)
	return nil
}

// Warmup seeds history for every symbol/timeframe pair from the feature
// store. Failures are logged per pair and do not stop the others.
func (uc *ConfluenceUseCase) Warmup(ctx context.Context, symbols, timeframes []string) int {
	seeded := 0
	for _, s := range symbols {
		for _, tf := range timeframes {
			k := engine.Key{Symbol: NormalizeSymbol(s), Timeframe: tf}
			if err := uc.warm(ctx, k); err != nil {
				uc.Logger.Warn("warmup", applogger.String("key", k.String()), applogger.Error(err))
				continue
			}
			uc.Registry.Get(k.Symbol, k.Timeframe)
			seeded++
		}
	}
	uc.Logger.Info("warmup done", applogger.Int("seeded", seeded))
	return seeded
}
