package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/parsec/internal/agent"
)

// Options carries the wired dependencies for the HTTP layer. Everything is
// constructed by the caller; the server only routes.
type Options struct {
	Orchestrator *agent.Orchestrator
	Investigator *agent.Investigator
	Authorizer   *Authorizer
	Signer       *ReportSigner
	ReportsDir   string

	DB    *sql.DB
	Redis *redis.Client

	AlertAPIKey  string
	AlertTimeout time.Duration
}

// Server is the HTTP front of the orchestration loop: one streaming endpoint
// for people, one JSON endpoint for the alerting system, plus report
// downloads and operational routes.
type Server struct {
	echo   *echo.Echo
	db     *sql.DB
	rdb    *redis.Client
	logger *log.Logger
}

func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	s := &Server{echo: e, db: opts.DB, rdb: opts.Redis, logger: baseLogger}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/health/ready", s.ready)

	qh := &QueryHandler{
		Orch:       opts.Orchestrator,
		Auth:       opts.Authorizer,
		Signer:     opts.Signer,
		ReportsDir: opts.ReportsDir,
		Logger:     log.New(log.Writer(), "[QUERY] ", log.LstdFlags),
	}
	qh.Register(api)

	ah := &AlertHandler{
		Investigator: opts.Investigator,
		APIKey:       opts.AlertAPIKey,
		Timeout:      opts.AlertTimeout,
		Logger:       log.New(log.Writer(), "[ALERT] ", log.LstdFlags),
	}
	ah.Register(api)

	return s
}

// ready reports whether downstream dependencies answer. The query path can
// work without redis, so a missing client is not a failure.
func (s *Server) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"ready": healthy, "checks": checks})
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
