// Package nkn implements a compact trainable feed-forward network used for
// short-horizon price forecasts and chart-pattern probabilities.
package nkn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// model is an immutable committed snapshot: inference only ever reads one.
type model struct {
	net    *network
	scaler *scaler
	meta   models.NetworkState
}

// TrainingOutcome is delivered by TrainAsync.
type TrainingOutcome struct {
	Result TrainingResult
	Err    error
}

// Predictor owns one network for one symbol/timeframe.
type Predictor struct {
	cfgMu sync.RWMutex
	cfg   Config
	valid bool

	committed atomic.Pointer[model]
	trainMu   sync.Mutex

	scalerMu sync.Mutex
	scaler   *scaler

	runs int64
	now  func() time.Time
}

func NewPredictor(cfg Config) *Predictor {
	return &Predictor{cfg: cfg, valid: cfg.Validate() == nil, now: time.Now}
}

func (p *Predictor) config() (Config, bool) {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg, p.valid && p.cfg.Enabled
}

// Enabled reports whether the predictor does any work.
func (p *Predictor) Enabled() bool {
	_, ok := p.config()
	return ok
}

// Config returns the current config.
func (p *Predictor) Config() Config {
	cfg, _ := p.config()
	return cfg
}

// ApplyConfig swaps the config. A change of network shape drops the committed
// network and the fitted scaler.
func (p *Predictor) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfgMu.Lock()
	reshape := !p.cfg.sameShape(cfg)
	p.cfg = cfg
	p.valid = true
	p.cfgMu.Unlock()

	if reshape {
		p.trainMu.Lock()
		p.committed.Store(nil)
		p.scalerMu.Lock()
		p.scaler = nil
		p.scalerMu.Unlock()
		p.trainMu.Unlock()
	}
	return nil
}

func (p *Predictor) checkData(candles []models.Candle, cfg Config) error {
	if len(candles) < cfg.TrainingPeriod {
		return fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), cfg.TrainingPeriod)
	}
	return nil
}

// ensureScaler fits the scaler on first use and returns the fitted one afterwards.
func (p *Predictor) ensureScaler(rows [][]float64) *scaler {
	p.scalerMu.Lock()
	defer p.scalerMu.Unlock()
	if p.scaler == nil {
		p.scaler = fitScaler(rows)
	}
	return p.scaler
}

// Train runs one training cycle on candles and commits the result atomically.
// A cancelled run commits nothing. Runs are serialized.
func (p *Predictor) Train(ctx context.Context, candles []models.Candle) (TrainingResult, error) {
	cfg, ok := p.config()
	if !ok {
		return TrainingResult{Skipped: true}, nil
	}
	if err := p.checkData(candles, cfg); err != nil {
		return TrainingResult{}, err
	}

	p.trainMu.Lock()
	defer p.trainMu.Unlock()

	rows, targets := dataset(candles, cfg.WindowSize)
	sc := p.ensureScaler(rows)

	set := make([]sample, len(rows))
	for i := range rows {
		set[i] = sample{x: withTag(sc.transform(rows[i]), -1), target: targets[i]}
	}
	split := int(float64(len(set)) * (1 - cfg.ValidationSplit))
	if split >= len(set) {
		split = len(set) - 1
	}
	if split < 1 {
		return TrainingResult{}, fmt.Errorf("%w: %d training samples", ErrInsufficientData, len(set))
	}
	train, val := set[:split], set[split:]

	run := atomic.AddInt64(&p.runs, 1)
	rng := rand.New(rand.NewSource(cfg.Seed + run))

	prev := p.committed.Load()
	var net *network
	sizes := layerSizes(inputSize(), cfg)
	if prev != nil && equalInts(prev.net.shape(), sizes) {
		net = prev.net.clone()
	} else {
		net = newNetwork(sizes, rng)
	}

	res, err := fit(ctx, net, train, val, cfg, rng)
	if err != nil {
		return res, fmt.Errorf("nkn training: %w", err)
	}

	meta := models.NetworkState{
		TrainingEpochs:  res.Epochs,
		LastError:       res.TrainError,
		ValidationError: res.ValidationError,
		TrainedAt:       p.now(),
	}
	if prev != nil {
		meta.TrainingEpochs += prev.meta.TrainingEpochs
	}
	if res.InitialError > 0 {
		meta.ConvergenceRate = (res.InitialError - res.TrainError) / res.InitialError
	}
	p.committed.Store(&model{net: net, scaler: sc, meta: meta})
	return res, nil
}

// TrainAsync runs Train in the background. The channel receives exactly one outcome.
func (p *Predictor) TrainAsync(ctx context.Context, candles []models.Candle) <-chan TrainingOutcome {
	ch := make(chan TrainingOutcome, 1)
	cs := append([]models.Candle(nil), candles...)
	go func() {
		res, err := p.Train(ctx, cs)
		ch <- TrainingOutcome{Result: res, Err: err}
		close(ch)
	}()
	return ch
}

// Trained reports whether a network has been committed.
func (p *Predictor) Trained() bool {
	return p.committed.Load() != nil
}

// State returns a copy of the committed network, or nil before the first commit.
func (p *Predictor) State() *models.NetworkState {
	m := p.committed.Load()
	if m == nil {
		return nil
	}
	st := m.meta
	st.Layers = m.net.layerStates()
	return &st
}

// quality maps validation error to [0,1]; untrained models score 0.
func (m *model) quality() float64 {
	if m == nil {
		return 0
	}
	return 1 / (1 + 10*m.meta.ValidationError)
}

// GeneratePredictions forecasts horizon steps ahead (PredictionHorizon if horizon <= 0).
// Each step feeds a synthetic candle at the forecast price back into the window.
// Confidence decays as exp(-h·DecayConstant) from the first step's value.
func (p *Predictor) GeneratePredictions(ctx context.Context, candles []models.Candle, horizon int) ([]models.NKNPrediction, error) {
	cfg, ok := p.config()
	if !ok {
		return nil, nil
	}
	if err := p.checkData(candles, cfg); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = cfg.PredictionHorizon
	}

	window := append([]models.Candle(nil), candles[len(candles)-cfg.WindowSize:]...)
	last := window[len(window)-1]
	step := barStep(candles)
	sigma := features.StdDev(features.ComputeLogReturns(window))
	if sigma == 0 {
		sigma = 1e-4
	}

	m := p.committed.Load()
	out := make([]models.NKNPrediction, 0, horizon)
	if m == nil {
		for h := 1; h <= horizon; h++ {
			out = append(out, models.NKNPrediction{
				Horizon:        h,
				PredictedPrice: last.Close,
				Probability:    0.5,
				Direction:      models.DirectionSideways,
				Timestamp:      last.Bucket.Add(time.Duration(h) * step),
			})
		}
		return out, nil
	}

	price := last.Close
	var base float64
	for h := 1; h <= horizon; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := withTag(m.scaler.transform(extractFeatures(window)), -1)
		prob := features.Clamp01(m.net.predict(x))
		ret := (2*prob - 1) * sigma
		next := price * math.Exp(ret)

		if h == 1 {
			base = features.Clamp01(0.5*math.Abs(2*prob-1) + 0.5*m.quality())
		}
		out = append(out, models.NKNPrediction{
			Horizon:        h,
			PredictedPrice: next,
			Probability:    prob,
			Confidence:     base * math.Exp(-float64(h)*cfg.DecayConstant),
			Direction:      direction(ret, sigma),
			Timestamp:      last.Bucket.Add(time.Duration(h) * step),
		})

		window = append(window[1:], models.Candle{
			Bucket: last.Bucket.Add(time.Duration(h) * step),
			Symbol: last.Symbol,
			Open:   price,
			High:   math.Max(price, next),
			Low:    math.Min(price, next),
			Close:  next,
			Volume: features.Mean(models.Volumes(window)),
		})
		price = next
	}
	return out, nil
}

// RecognizePatterns scores every pattern tag through the network and keeps those
// above ConfidenceThreshold, most probable first.
func (p *Predictor) RecognizePatterns(ctx context.Context, candles []models.Candle) ([]models.NKNPatternResult, error) {
	cfg, ok := p.config()
	if !ok {
		return nil, nil
	}
	if err := p.checkData(candles, cfg); err != nil {
		return nil, err
	}
	m := p.committed.Load()
	if m == nil {
		return nil, nil
	}

	window := candles[len(candles)-cfg.WindowSize:]
	sigma := features.StdDev(features.ComputeLogReturns(window))
	x := m.scaler.transform(extractFeatures(window))

	var out []models.NKNPatternResult
	for tag, pt := range models.PatternTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		up := features.Clamp01(m.net.predict(withTag(x, tag)))
		prob, dir, sign := up, models.DirectionUp, 1.0
		if !pt.Bullish() {
			prob, dir, sign = 1-up, models.DirectionDown, -1.0
		}
		if prob <= cfg.ConfidenceThreshold {
			continue
		}
		out = append(out, models.NKNPatternResult{
			Pattern:      pt,
			Probability:  prob,
			Direction:    dir,
			Confidence:   features.Clamp01(prob * m.quality()),
			ExpectedMove: sign * prob * sigma * math.Sqrt(float64(cfg.PredictionHorizon)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out, nil
}

// Confidence is the scalar contribution of a prediction set: the first step's confidence.
func Confidence(preds []models.NKNPrediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	return preds[0].Confidence
}

func direction(ret, sigma float64) models.Direction {
	switch {
	case ret > 0.1*sigma:
		return models.DirectionUp
	case ret < -0.1*sigma:
		return models.DirectionDown
	}
	return models.DirectionSideways
}

// barStep infers the bar length from the last two candles (one minute if unknown).
func barStep(cs []models.Candle) time.Duration {
	if len(cs) >= 2 {
		if d := cs[len(cs)-1].Bucket.Sub(cs[len(cs)-2].Bucket); d > 0 {
			return d
		}
	}
	return time.Minute
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
