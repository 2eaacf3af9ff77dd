package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	pkgch "FinFusion/pkg/clickhouse"
)

func newMock(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.FromDB(db, "finfusion"), mock
}

var t0 = time.Date(2024, 3, 6, 13, 0, 0, 0, time.UTC)

func TestGetLatestNCandlesReturnsAscending(t *testing.T) {
	ch, mock := newMock(t)
	store := NewCHFeatureStore(ch)

	rows := sqlmock.NewRows([]string{"bucket", "symbol", "timeframe", "open", "high", "low", "close", "volume"}).
		AddRow(t0.Add(2*time.Minute), "BTCUSDT", "1m", 3.0, 3.5, 2.5, 3.2, 30.0).
		AddRow(t0.Add(time.Minute), "BTCUSDT", "1m", 2.0, 2.5, 1.5, 2.2, 20.0).
		AddRow(t0, "BTCUSDT", "1m", 1.0, 1.5, 0.5, 1.2, 10.0)
	mock.ExpectQuery(`SELECT .* FROM finfusion\.candles FINAL\s+WHERE symbol = \? AND timeframe = \?\s+ORDER BY bucket DESC`).
		WithArgs("BTCUSDT", "1m", 3).
		WillReturnRows(rows)

	got, err := store.GetLatestNCandles(context.Background(), "BTCUSDT", 3, domrepo.TF1m)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, t0, got[0].Bucket)
	assert.Equal(t, 3.2, got[2].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestNCandlesZeroSkipsQuery(t *testing.T) {
	ch, mock := newMock(t)
	got, err := NewCHFeatureStore(ch).GetLatestNCandles(context.Background(), "BTCUSDT", 0, domrepo.TF1m)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCandlesWrapsQueryError(t *testing.T) {
	ch, mock := newMock(t)
	mock.ExpectQuery(`FROM finfusion\.candles`).WillReturnError(assert.AnError)

	_, err := NewCHFeatureStore(ch).GetCandles(context.Background(), "ETHUSDT", t0, t0.Add(time.Hour), domrepo.TF5m)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "get candles")
}

func TestGetLatestNSamples(t *testing.T) {
	ch, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"ts", "rsi", "wt1", "wt2", "wt_signal", "wt_divergence", "pvt", "trend", "momentum", "volatility"}).
		AddRow(t0.Add(time.Minute), 55.0, 10.0, 8.0, "buy", "", 1200.0, "bullish", "strong", 0.02).
		AddRow(t0, 45.0, -5.0, -3.0, "sell", "bullish", 1100.0, "sideways", "weak", 0.01)
	mock.ExpectQuery(`FROM finfusion\.indicator_samples FINAL`).
		WithArgs("BTCUSDT", "1m", 2).
		WillReturnRows(rows)

	got, err := NewCHFeatureStore(ch).GetLatestNSamples(context.Background(), "BTCUSDT", 2, domrepo.TF1m)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 45.0, got[0].RSI)
	assert.Equal(t, models.WTBuy, got[1].WaveTrend.Signal)
	assert.Equal(t, "bullish", got[0].WaveTrend.Divergence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestNSamplesScanErrorNamesRead(t *testing.T) {
	ch, mock := newMock(t)
	mock.ExpectQuery(`FROM finfusion\.indicator_samples FINAL`).
		WillReturnRows(sqlmock.NewRows([]string{"ts"}).AddRow(t0))

	got, err := NewCHFeatureStore(ch).GetLatestNSamples(context.Background(), "BTCUSDT", 5, domrepo.TF1m)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "get latest samples")
}

func TestGetLatestNCandlesEmptySeries(t *testing.T) {
	ch, mock := newMock(t)
	mock.ExpectQuery(`FROM finfusion\.candles FINAL`).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "symbol", "timeframe", "open", "high", "low", "close", "volume"}))

	got, err := NewCHFeatureStore(ch).GetLatestNCandles(context.Background(), "SOLUSDT", 10, domrepo.TF1h)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendBarWritesCandleAndSample(t *testing.T) {
	ch, mock := newMock(t)
	bar := models.Bar{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Candle:    models.Candle{Bucket: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		Sample:    &models.IndicatorSample{RSI: 60},
	}
	mock.ExpectExec(`INSERT INTO finfusion\.candles`).
		WithArgs(t0, "BTCUSDT", "1m", 1.0, 2.0, 0.5, 1.5, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO finfusion\.indicator_samples`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewCHFeatureStore(ch).AppendBar(context.Background(), bar))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendBarWithoutSample(t *testing.T) {
	ch, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO finfusion\.candles`).WillReturnResult(sqlmock.NewResult(0, 1))

	bar := models.Bar{Symbol: "BTCUSDT", Timeframe: "1m", Candle: models.Candle{Bucket: t0}}
	require.NoError(t, NewCHFeatureStore(ch).AppendBar(context.Background(), bar))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionStoreRoundTrip(t *testing.T) {
	ch, mock := newMock(t)
	store := NewCHDecisionStore(ch)
	d := &models.WeightedConfidence{
		ID:                "c1f1",
		Symbol:            "BTCUSDT",
		Timeframe:         "1m",
		Timestamp:         t0,
		OverallConfidence: 0.72,
		Signal:            models.SignalBullish,
		Factors:           models.ConfidenceFactors{Technical: 0.8},
		Weights:           models.ConfidenceWeights{Technical: 1},
		Adjustments:       []models.ConfidenceAdjustment{{Type: "staleness", Before: 0.8, After: 0.7}},
		Reliability:       0.6,
		RiskLevel:         models.RiskMedium,
	}

	mock.ExpectExec(`INSERT INTO finfusion\.decisions`).
		WithArgs("c1f1", t0, "BTCUSDT", "1m", "bullish", 0.72, 0.6, "medium",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SaveDecision(context.Background(), d))

	factors, _ := json.Marshal(d.Factors)
	weights, _ := json.Marshal(d.Weights)
	adjustments, _ := json.Marshal(d.Adjustments)
	rows := sqlmock.NewRows([]string{"id", "ts", "symbol", "timeframe", "signal", "overall_confidence", "reliability",
		"risk_level", "factors", "weights", "adjustments"}).
		AddRow("c1f1", t0, "BTCUSDT", "1m", "bullish", 0.72, 0.6, "medium", string(factors), string(weights), string(adjustments))
	mock.ExpectQuery(`FROM finfusion\.decisions`).WithArgs("BTCUSDT", "1m", 5).WillReturnRows(rows)

	got, err := store.LatestDecisions(context.Background(), "BTCUSDT", domrepo.TF1m, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *d, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaCoversAllTables(t *testing.T) {
	stmts := Schema("finfusion")
	joined := ""
	for _, s := range stmts {
		joined += s
	}
	for _, table := range []string{"finfusion.candles", "finfusion.indicator_samples", "finfusion.decisions"} {
		assert.Contains(t, joined, table)
	}
}
