package nkn

import (
	"context"
	"math"
	"math/rand"
	"time"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/services/features"
)

// TrainingResult summarizes one completed training run.
type TrainingResult struct {
	Skipped         bool          `json:"skipped"`
	Samples         int           `json:"samples"`
	Epochs          int           `json:"epochs"`
	InitialError    float64       `json:"initial_error"`
	TrainError      float64       `json:"train_error"`
	ValidationError float64       `json:"validation_error"`
	LearningRate    float64       `json:"learning_rate"`
	Truncated       bool          `json:"truncated"`
	Duration        time.Duration `json:"duration"`
}

type sample struct {
	x      []float64
	target float64
}

// dataset builds (window features, next-step target) pairs. Targets map the next
// log return through tanh scaled by the return dispersion, so both sign and
// magnitude are kept inside (0,1).
func dataset(candles []models.Candle, window int) (rows [][]float64, targets []float64) {
	rets := features.ComputeLogReturns(candles)
	sigma := features.StdDev(rets)
	if sigma == 0 {
		sigma = 1
	}
	for t := window - 1; t < len(candles)-1; t++ {
		rows = append(rows, extractFeatures(candles[t-window+1:t+1]))
		targets = append(targets, 0.5+0.5*math.Tanh(rets[t]/sigma))
	}
	return rows, targets
}

func meanSquaredError(n *network, set []sample) float64 {
	if len(set) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range set {
		d := n.predict(s.x) - s.target
		sum += d * d
	}
	return sum / float64(len(set))
}

// fit trains net in place. It returns ctx.Err() if cancelled between epochs;
// the caller then discards net.
func fit(ctx context.Context, net *network, train, val []sample, cfg Config, rng *rand.Rand) (TrainingResult, error) {
	start := time.Now()
	res := TrainingResult{Samples: len(train) + len(val)}
	lr := cfg.LearningRate
	res.InitialError = meanSquaredError(net, train)

	idx := make([]int, len(train))
	for i := range idx {
		idx[i] = i
	}

	for epoch := 0; epoch < cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if cfg.MaxTrainingDuration > 0 && time.Since(start) > cfg.MaxTrainingDuration {
			res.Truncated = true
			break
		}

		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for b := 0; b < len(idx); b += cfg.BatchSize {
			end := b + cfg.BatchSize
			if end > len(idx) {
				end = len(idx)
			}
			g := net.zeroGradients()
			for _, i := range idx[b:end] {
				net.backprop(train[i].x, train[i].target, &g)
			}
			net.apply(g, lr, end-b)
		}

		res.Epochs = epoch + 1
		res.TrainError = meanSquaredError(net, train)
		res.ValidationError = meanSquaredError(net, val)

		// overfitting guard
		if res.ValidationError > 2*res.TrainError {
			lr *= 0.5
		}
		lr *= cfg.LearningRateDecay
		if lr < cfg.MinLearningRate {
			break
		}
	}

	res.LearningRate = lr
	res.Duration = time.Since(start)
	return res, nil
}
