package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	"FinFusion/internal/engine"
	"FinFusion/internal/service/ratelimit"
	"FinFusion/pkg/cache"
	applogger "FinFusion/pkg/logger"
)

// TrainingUseCase runs manual training requests. The rate limiter is shared
// with automatic retrains through LimiterGate; the cache lock keeps replicas
// from training the same engine at once.
type TrainingUseCase struct {
	registry *engine.Registry
	history  *History
	store    domrepo.FeatureStore
	limiter  *ratelimit.Limiter
	locker   cache.Store
	lockTTL  time.Duration
	log      *applogger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTrainingUseCase(registry *engine.Registry, history *History, store domrepo.FeatureStore, limiter *ratelimit.Limiter, locker cache.Store, lockTTL time.Duration, log *applogger.Logger) *TrainingUseCase {
	if log == nil {
		log = applogger.Nop()
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TrainingUseCase{
		registry: registry,
		history:  history,
		store:    store,
		limiter:  limiter,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LimiterGate adapts the training limiter into an engine.WithTrainGate
// callback so automatic retrains and manual runs draw from one budget.
func LimiterGate(l *ratelimit.Limiter) func(engine.Key) bool {
	return func(k engine.Key) bool {
		return l == nil || l.Allow(k.String())
	}
}

func lockKey(k engine.Key) string { return cache.Key("train", k.Symbol, k.Timeframe) }

// Train starts a run over the newest req.Candles candles. With req.Wait the
// call blocks until the run ends and reports its result.
func (uc *TrainingUseCase) Train(ctx context.Context, req models.TrainRequest) (*models.TrainView, error) {
	k := keyOf(req.SymbolQuery)
	if uc.limiter != nil && !uc.limiter.Allow(k.String()) {
		return nil, fmt.Errorf("%w: retry in %s", ErrThrottled, uc.limiter.RetryAfter(k.String()).Round(time.Second))
	}
	candles, err := uc.candles(ctx, k, req.Candles)
	if err != nil {
		return nil, err
	}
	e := uc.registry.Get(k.Symbol, k.Timeframe)
	if e.Training() {
		return nil, ErrTrainingInProgress
	}
	var lock *cache.Lock
	if uc.locker != nil {
		lock, err = uc.locker.TryLock(ctx, lockKey(k), uc.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("training lock: %w", err)
		}
		if lock == nil {
			return nil, ErrTrainingInProgress
		}
	}

	view := &models.TrainView{Symbol: k.Symbol, Timeframe: k.Timeframe, Started: true}
	if req.Wait {
		defer uc.unlock(k, lock)
		res, err := e.Train(ctx, candles)
		if err != nil {
			return nil, err
		}
		view.Result = res
		return view, nil
	}

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		defer uc.unlock(k, lock)
		res, err := e.Train(uc.ctx, candles)
		if err != nil {
			uc.log.Error("manual training", applogger.String("key", k.String()), applogger.Error(err))
			return
		}
		uc.log.Info("manual training done",
			applogger.String("key", k.String()),
			applogger.Int("epochs", res.Epochs),
			applogger.Float64("validation_error", res.ValidationError),
			applogger.Duration("duration_ms", res.Duration),
		)
	}()
	return view, nil
}

// candles prefers in-memory history and tops up from the feature store.
func (uc *TrainingUseCase) candles(ctx context.Context, k engine.Key, n int) ([]models.Candle, error) {
	snap, _ := uc.history.Snapshot(k)
	if len(snap.Candles) >= n || uc.store == nil {
		if len(snap.Candles) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotTracked, k)
		}
		if len(snap.Candles) > n {
			return snap.Candles[len(snap.Candles)-n:], nil
		}
		return snap.Candles, nil
	}
	cs, err := uc.store.GetLatestNCandles(ctx, k.Symbol, n, domrepo.Timeframe(k.Timeframe))
	if err != nil {
		return nil, fmt.Errorf("load training candles: %w", err)
	}
	if len(cs) < len(snap.Candles) {
		cs = snap.Candles
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	return cs, nil
}

func (uc *TrainingUseCase) unlock(k engine.Key, lock *cache.Lock) {
	if err := lock.Release(context.Background()); err != nil {
		uc.log.Warn("training unlock", applogger.String("key", k.String()), applogger.Error(err))
	}
}

// Close cancels background runs and waits for them.
func (uc *TrainingUseCase) Close() {
	uc.cancel()
	uc.wg.Wait()
}
