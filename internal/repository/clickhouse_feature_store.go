package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	pkgch "FinFusion/pkg/clickhouse"
	applogger "FinFusion/pkg/logger"
)

// CHFeatureStore keeps the candle and indicator-sample series that engines
// warm up and train from.
type CHFeatureStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client) *CHFeatureStore {
	return &CHFeatureStore{ch: ch, db: ch.DB(), l: applogger.Nop()}
}

func (s *CHFeatureStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHFeatureStore) table(name string) string {
	return s.ch.Database() + "." + name
}

const (
	candleCols = "bucket, symbol, timeframe, open, high, low, close, volume"
	sampleCols = "ts, rsi, wt1, wt2, wt_signal, wt_divergence, pvt, trend, momentum, volatility"
)

func scanCandle(r *sql.Rows, c *models.Candle) error {
	return r.Scan(&c.Bucket, &c.Symbol, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
}

func scanSample(r *sql.Rows, m *models.IndicatorSample) error {
	return r.Scan(&m.Timestamp, &m.RSI, &m.WaveTrend.WT1, &m.WaveTrend.WT2, &m.WaveTrend.Signal,
		&m.WaveTrend.Divergence, &m.PVT, &m.Trend, &m.Momentum, &m.Volatility)
}

// readSeries runs one read against a symbol/timeframe series and scans
// every row in query order.
func readSeries[T any](ctx context.Context, s *CHFeatureStore, op, symbol string, tf domrepo.Timeframe,
	scan func(*sql.Rows, *T) error, q string, args ...any) ([]T, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("op", op),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}
	fail := func(err error) ([]T, error) {
		s.l.Error("clickhouse series read", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fail(err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return fail(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}
	s.l.Debug("clickhouse series read", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

// GetCandles returns the candles bucketed within [from, to], oldest first.
func (s *CHFeatureStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
		WHERE symbol = ? AND timeframe = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket ASC`, candleCols, s.table("candles"))
	return readSeries(ctx, s, "get candles", symbol, tf, scanCandle, q, symbol, string(tf), from, to)
}

// GetLatestNCandles returns up to n of the newest candles, oldest first.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY bucket DESC LIMIT ?`, candleCols, s.table("candles"))
	out, err := readSeries(ctx, s, "get latest candles", symbol, tf, scanCandle, q, symbol, string(tf), n)
	reverse(out)
	return out, err
}

// GetLatestNSamples returns up to n of the newest indicator samples, oldest
// first.
func (s *CHFeatureStore) GetLatestNSamples(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.IndicatorSample, error) {
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC LIMIT ?`, sampleCols, s.table("indicator_samples"))
	out, err := readSeries(ctx, s, "get latest samples", symbol, tf, scanSample, q, symbol, string(tf), n)
	reverse(out)
	return out, err
}

// AppendBar stores the candle and, when present, its indicator sample. A
// sample without its own timestamp takes the candle bucket.
func (s *CHFeatureStore) AppendBar(ctx context.Context, bar models.Bar) error {
	c := bar.Candle
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table("candles"), candleCols)
	if _, err := s.db.ExecContext(ctx, q, c.Bucket, bar.Symbol, bar.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
		return fmt.Errorf("insert candle: %w", err)
	}
	m := bar.Sample
	if m == nil {
		return nil
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = c.Bucket
	}
	q = fmt.Sprintf("INSERT INTO %s (symbol, timeframe, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table("indicator_samples"), sampleCols)
	if _, err := s.db.ExecContext(ctx, q, bar.Symbol, bar.Timeframe, ts, m.RSI, m.WaveTrend.WT1, m.WaveTrend.WT2,
		m.WaveTrend.Signal, m.WaveTrend.Divergence, m.PVT, m.Trend, m.Momentum, m.Volatility); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func reverse[T any](xs []T) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

var (
	_ domrepo.FeatureStore = (*CHFeatureStore)(nil)
	_ domrepo.BarWriter    = (*CHFeatureStore)(nil)
)
