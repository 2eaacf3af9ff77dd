package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFusion/internal/domain/models"
	"FinFusion/internal/engine"
	"FinFusion/internal/engine/nkn"
	"FinFusion/internal/service/ratelimit"
	"FinFusion/internal/services/conditions"
	"FinFusion/internal/usecase"
	"FinFusion/pkg/cache"
	xhttp "FinFusion/pkg/http"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	e          *echo.Echo
	confluence *usecase.ConfluenceUseCase
}

func newTestServer(t *testing.T, perHour float64) *testServer {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.AutoTrain = false
	cfg.Predictor = nkn.DefaultConfig().WithOverrides(nkn.WithTrainingPeriod(60), nkn.WithEpochs(2))
	reg := engine.NewRegistry(cfg)
	t.Cleanup(reg.Close)

	mc := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = mc.Close() })
	history := usecase.NewHistory(300)

	confluence := usecase.NewConfluenceUseCase(usecase.ConfluenceDeps{
		Registry: reg,
		History:  history,
		Deriver:  conditions.New(conditions.Config{}),
		Cache:    mc,
	}, time.Minute, 0)
	training := usecase.NewTrainingUseCase(reg, history, nil, ratelimit.New(perHour, 1), mc, time.Minute, nil)
	t.Cleanup(training.Close)

	e := echo.New()
	NewConfluenceEchoHandler(nil, confluence, training).RegisterRoutes(e)
	return &testServer{e: e, confluence: confluence}
}

func (s *testServer) seed(t *testing.T, symbol string, n int) {
	t.Helper()
	t0 := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		x := float64(i)
		next := 100 + 4*math.Sin(x/5) + 0.01*x
		bar := models.Bar{
			Symbol:    symbol,
			Timeframe: "1m",
			Candle: models.Candle{
				Bucket: t0.Add(time.Duration(i) * time.Minute),
				Open:   price,
				High:   math.Max(price, next) + 0.1,
				Low:    math.Min(price, next) - 0.1,
				Close:  next,
				Volume: 400 + 50*math.Cos(x/3),
			},
			Sample: &models.IndicatorSample{
				RSI:       50 + 15*math.Sin(x/5),
				WaveTrend: models.WaveTrend{WT1: 30 * math.Sin(x/5), WT2: 30 * math.Sin((x-2)/5), Signal: models.WTNeutral},
				PVT:       x,
				Trend:     models.TrendSideways,
				Momentum:  models.MomentumNeutral,
			},
		}
		_, err := s.confluence.Ingest(context.Background(), bar)
		require.NoError(t, err)
		price = next
	}
}

func (s *testServer) do(t *testing.T, method, target, body string) envelope {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "envelope is always written with 200")

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestConfluenceEndpoint(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "BTCUSDT", 40)

	env := s.do(t, http.MethodGet, "/api/confluence?symbol=btcusdt&timeframe=1m", "")
	require.Equal(t, http.StatusOK, env.Status)

	var d models.WeightedConfidence
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.NotEmpty(t, d.ID)
	assert.GreaterOrEqual(t, d.OverallConfidence, 0.0)
	assert.LessOrEqual(t, d.OverallConfidence, 1.0)
}

func TestConfluenceValidation(t *testing.T) {
	s := newTestServer(t, 10)

	env := s.do(t, http.MethodGet, "/api/confluence?timeframe=1m", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = s.do(t, http.MethodGet, "/api/confluence?symbol=BTCUSDT&timeframe=2m", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	var errs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.NotEmpty(t, errs)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
}

func TestUntrackedSymbolIsNotFound(t *testing.T) {
	s := newTestServer(t, 10)
	for _, target := range []string{
		"/api/confluence?symbol=NOPE",
		"/api/thresholds?symbol=NOPE",
		"/api/predictions?symbol=NOPE",
		"/api/patterns?symbol=NOPE",
	} {
		env := s.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, env.Status, target)
	}
}

func TestThresholdsEndpoints(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "ETHUSDT", 30)

	env := s.do(t, http.MethodGet, "/api/thresholds?symbol=ETHUSDT", "")
	require.Equal(t, http.StatusOK, env.Status)
	var v models.ThresholdsView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "1m", v.Timeframe)

	env = s.do(t, http.MethodPost, "/api/thresholds/reset", `{"symbol":"ETHUSDT","timeframe":"1m"}`)
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, v.Base, v.Current)
}

func TestPredictionsEndpointUntrained(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "BTCUSDT", 30)

	env := s.do(t, http.MethodGet, "/api/predictions?symbol=BTCUSDT&horizon=3", "")
	require.Equal(t, http.StatusOK, env.Status)
	var v models.PredictionsView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.False(t, v.Trained)

	env = s.do(t, http.MethodGet, "/api/predictions?symbol=BTCUSDT&horizon=0", "")
	assert.Equal(t, http.StatusOK, env.Status, "zero horizon falls back to the default")

	env = s.do(t, http.MethodGet, "/api/predictions?symbol=BTCUSDT&horizon=500", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestTrainEndpoint(t *testing.T) {
	s := newTestServer(t, 1)
	s.seed(t, "BTCUSDT", 120)

	env := s.do(t, http.MethodPost, "/api/train", `{"symbol":"BTCUSDT","candles":120,"wait":true}`)
	require.Equal(t, http.StatusOK, env.Status)
	var v models.TrainView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.True(t, v.Started)

	env = s.do(t, http.MethodPost, "/api/train", `{"symbol":"BTCUSDT","candles":120}`)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
}

func TestTrainEndpointAsync(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "BTCUSDT", 120)

	env := s.do(t, http.MethodPost, "/api/train", `{"symbol":"BTCUSDT","candles":120}`)
	assert.Equal(t, http.StatusAccepted, env.Status)

	env = s.do(t, http.MethodPost, "/api/train", `{"symbol":"BTCUSDT","candles":10}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestOutcomeEndpoint(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "BTCUSDT", 20)

	env := s.do(t, http.MethodPost, "/api/outcome", `{"symbol":"BTCUSDT","decision_id":"x","score":0.8}`)
	require.Equal(t, http.StatusOK, env.Status)
	var v models.PerformanceView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, 1, v.Samples)
	assert.InDelta(t, 0.8, v.Average, 1e-9)

	env = s.do(t, http.MethodPost, "/api/outcome", `{"symbol":"BTCUSDT","score":1.5}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestLatestDecisionsEndpoint(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed(t, "BTCUSDT", 20)
	s.seed(t, "ETHUSDT", 20)

	env := s.do(t, http.MethodGet, "/api/decisions/latest?timeframe=1m", "")
	require.Equal(t, http.StatusOK, env.Status)
	var list struct {
		Rows  []models.WeightedConfidence `json:"rows"`
		Total int64                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	env = s.do(t, http.MethodGet, "/api/decisions/latest?symbols=ethusdt", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "ETHUSDT", list.Rows[0].Symbol)
}

func TestToAppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, toAppError(usecase.ErrNotTracked).Status)
	assert.Equal(t, http.StatusTooManyRequests, toAppError(usecase.ErrThrottled).Status)
	assert.Equal(t, http.StatusConflict, toAppError(usecase.ErrTrainingInProgress).Status)
	assert.Equal(t, http.StatusGatewayTimeout, toAppError(context.DeadlineExceeded).Status)
	assert.Equal(t, http.StatusInternalServerError, toAppError(assert.AnError).Status)
}
