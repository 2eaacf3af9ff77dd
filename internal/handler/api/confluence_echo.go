package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "FinFusion/internal/domain/models"
	svcmetrics "FinFusion/internal/service/metrics"
	"FinFusion/internal/usecase"
	xhttp "FinFusion/pkg/http"
	xlogger "FinFusion/pkg/logger"
)

// ConfluenceEchoHandler serves the engines over HTTP.
type ConfluenceEchoHandler struct {
	logger     *xlogger.Logger
	confluence *usecase.ConfluenceUseCase
	training   *usecase.TrainingUseCase
	timeout    time.Duration
}

func NewConfluenceEchoHandler(logger *xlogger.Logger, confluence *usecase.ConfluenceUseCase, training *usecase.TrainingUseCase) *ConfluenceEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ConfluenceEchoHandler{logger: logger, confluence: confluence, training: training, timeout: 10 * time.Second}
}

func (h *ConfluenceEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/confluence", h.Confluence)
	g.GET("/thresholds", h.Thresholds)
	g.POST("/thresholds/reset", h.ResetThresholds)
	g.GET("/predictions", h.Predictions)
	g.GET("/patterns", h.Patterns)
	g.POST("/train", h.Train)
	g.POST("/outcome", h.Outcome)
	g.GET("/decisions/latest", h.LatestDecisions)
}

// fail maps usecase errors onto the response envelope.
func (h *ConfluenceEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	svcmetrics.Failures.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	}
	return xhttp.Fail(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrNotTracked):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, usecase.ErrThrottled):
		return xhttp.TooManyRequestsError(err.Error())
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError(err)
	default:
		return xhttp.InternalError(err)
	}
}

func (h *ConfluenceEchoHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.timeout)
}

func (h *ConfluenceEchoHandler) Confluence(c echo.Context) error {
	req := &models.ConfluenceRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.confluence.Confluence(ctx, *req)
	if err != nil {
		return h.fail(c, "confluence", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) Thresholds(c echo.Context) error {
	req := &models.SymbolQuery{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	res, err := h.confluence.Thresholds(*req)
	if err != nil {
		return h.fail(c, "thresholds", err)
	}
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) ResetThresholds(c echo.Context) error {
	req := &models.SymbolQuery{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	res, err := h.confluence.ResetThresholds(*req)
	if err != nil {
		return h.fail(c, "thresholds_reset", err)
	}
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) Predictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.confluence.Predictions(ctx, *req)
	if err != nil {
		return h.fail(c, "predictions", err)
	}
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) Patterns(c echo.Context) error {
	req := &models.SymbolQuery{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.confluence.Patterns(ctx, *req)
	if err != nil {
		return h.fail(c, "patterns", err)
	}
	return xhttp.OK(c, res)
}

// Train does not use the request timeout when Wait is set: a blocking run
// is bounded by the predictor's own duration budget.
func (h *ConfluenceEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	res, err := h.training.Train(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "train", err)
	}
	if !req.Wait {
		return xhttp.Accepted(c, res)
	}
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) Outcome(c echo.Context) error {
	req := &models.OutcomeRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	res, err := h.confluence.RecordOutcome(*req)
	if err != nil {
		return h.fail(c, "outcome", err)
	}
	return xhttp.OK(c, res)
}

func (h *ConfluenceEchoHandler) LatestDecisions(c echo.Context) error {
	req := &models.LatestDecisionsRequest{}
	if verrs := xhttp.Bind(c, req); verrs != nil {
		return xhttp.Invalid(c, verrs)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	rows, err := h.confluence.LatestDecisions(ctx, *req)
	if err != nil {
		return h.fail(c, "decisions_latest", err)
	}
	return xhttp.List(c, rows)
}
