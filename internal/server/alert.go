package server

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/parsec/internal/agent"
)

// AlertHandler serves the machine surface: the alerting system posts a cost
// anomaly and waits for a verdict. Authentication is a shared API key.
type AlertHandler struct {
	Investigator *agent.Investigator
	APIKey       string
	Timeout      time.Duration
	Logger       *log.Logger
}

func (h *AlertHandler) Register(g *echo.Group) {
	g.POST("/alert/investigate", h.investigate)
}

func (h *AlertHandler) investigate(c echo.Context) error {
	if h.APIKey == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "alert investigation is not configured")
	}
	key := c.Request().Header.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.APIKey)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
	}

	var alert agent.Alert
	if err := c.Bind(&alert); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if alert.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "alert_name required")
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	h.Logger.Printf("investigating alert %q", alert.Name)
	result := h.Investigator.Investigate(ctx, alert)
	h.Logger.Printf("alert %q: should_alert=%t severity=%s (%.1fs)",
		alert.Name, result.ShouldAlert, result.Severity, result.DurationSeconds)
	return c.JSON(http.StatusOK, result)
}
