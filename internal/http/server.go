package http

import (
	"context"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/http/middleware"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/index"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/metrics"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

type Server struct{ e *echo.Echo }

// NewServer wires the ops/monitoring surface: sync health, dead-letter
// view, verify, and attempt history. The business CRUD API lives in other
// services; nothing here accepts writes except the dead-letter requeue.
func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, idx index.Client) *Server {
	// repos (MySQL)
	oplogRepo := repository.NewOperationLogRepository(mysqlDB)
	statusRepo := repository.NewSyncStatusRepository(mysqlDB)

	// repos (ClickHouse)
	attemptsRepo := repository.NewAttemptsRepository(clickhouseDB)

	verifier := engine.NewVerifier(oplogRepo, statusRepo, idx)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health: the basic probe never depends on sync backlog
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/healthz/sync", syncHealthHandler(statusRepo, cfg.Reconciler.MaxRetries, cfg.Health))

	// middlewares
	opsMW := middleware.OpsTokenMiddleware(cfg.HTTP.OpsToken)

	// routes
	v1 := e.Group("/v1", opsMW)
	v1.GET("/verify/:token", verifyHandler(verifier))
	v1.GET("/dead-letters", listDeadLettersHandler(statusRepo, cfg.Reconciler.MaxRetries))
	v1.POST("/dead-letters/retry", retryDeadLetterHandler(statusRepo))
	v1.GET("/attempts", listAttemptsHandler(attemptsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
