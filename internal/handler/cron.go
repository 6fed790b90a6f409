package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/service"
)

// TrendingRunner runs one trending recalculation.
type TrendingRunner interface {
	Run(ctx context.Context) (service.RunSummary, error)
}

// LifecycleRunner runs one show status pass.
type LifecycleRunner interface {
	Advance(ctx context.Context) (service.StatusSummary, error)
}

// CronHandler exposes the scheduled jobs to an external scheduler.
type CronHandler struct {
	Trending  TrendingRunner
	Lifecycle LifecycleRunner
	Log       logrus.FieldLogger
}

// RunTrending recalculates trending scores and returns the run summary.
func (h *CronHandler) RunTrending(c echo.Context) error {
	sum, err := h.Trending.Run(c.Request().Context())
	if err != nil {
		h.Log.WithError(err).Error("trending recalculation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "trending recalculation failed"})
	}
	return c.JSON(http.StatusOK, sum)
}

// AdvanceStatuses moves shows through their lifecycle.
func (h *CronHandler) AdvanceStatuses(c echo.Context) error {
	sum, err := h.Lifecycle.Advance(c.Request().Context())
	if err != nil {
		h.Log.WithError(err).Error("show status pass failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "show status update failed"})
	}
	return c.JSON(http.StatusOK, sum)
}
