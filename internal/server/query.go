package server

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/parsec/internal/agent"
	"github.com/mohammad-safakhou/parsec/internal/stream"
)

// QueryHandler serves the interactive surface: the streaming query endpoint
// and report downloads. Identity comes from the auth proxy in front of us
// via forwarded headers.
type QueryHandler struct {
	Orch       *agent.Orchestrator
	Auth       *Authorizer
	Signer     *ReportSigner
	ReportsDir string
	Logger     *log.Logger
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("/query", h.query)
	g.GET("/reports/:filename", h.report)
}

type queryRequest struct {
	Question string          `json:"question"`
	History  []agent.Message `json:"conversation_history"`
}

// identity returns the proxy-asserted user, preferring email.
func identity(c echo.Context) string {
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	return c.Request().Header.Get("X-Forwarded-User")
}

func (h *QueryHandler) query(c echo.Context) error {
	user := identity(c)
	if user == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	allowed, err := h.Auth.Allowed(c.Request().Context(), user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "authorization check failed")
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusForbidden, "not authorized for cost investigations")
	}

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	sse, err := stream.NewSSE(c.Response())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Logger.Printf("query from %s (%d prior messages)", user, len(req.History))
	// The stream is committed from here on: run errors surface as protocol
	// error events, not HTTP statuses.
	if _, err := h.Orch.Run(c.Request().Context(), req.Question, req.History, sse); err != nil {
		h.Logger.Printf("query from %s ended with error: %v", user, err)
	}
	return nil
}

func (h *QueryHandler) report(c echo.Context) error {
	filename := filepath.Base(c.Param("filename"))
	if filename == "." || filename == "/" || strings.HasPrefix(filename, ".") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report filename")
	}

	// Either a proxy identity that passes the allowlist, or a signed token
	// minted when the report was generated.
	authorized := false
	if user := identity(c); user != "" {
		ok, err := h.Auth.Allowed(c.Request().Context(), user)
		if err == nil && ok {
			authorized = true
		}
	}
	if !authorized {
		token := c.QueryParam("token")
		if token == "" || h.Signer == nil || h.Signer.Verify(token, filename) != nil {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized to download this report")
		}
	}

	path := filepath.Join(h.ReportsDir, filename)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.Attachment(path, filename)
}
