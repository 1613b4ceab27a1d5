package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/export"
	"github.com/jmehdipour/sms-relay/internal/http/middleware"
	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jmehdipour/sms-relay/internal/service/mailbox"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface mediates between.
// Exactly one of Slot and Queue is set, matching mailbox.mode.
type Deps struct {
	Log     *zap.Logger
	Relay   *relay.Service
	Slot    *mailbox.Slot
	Queue   *mailbox.Queue
	Exports *export.Store
	Reports repository.ArchiveRepository // nil without clickhouse
	Redis   *redis.Client                // nil without redis
}

type Server struct {
	e *echo.Echo
	Deps
	log *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	s := &Server{Deps: deps, log: logger.OrNop(deps.Log)}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.HTTPErrorHandler = s.httpErrorHandler
	e.Use(
		echoMid.Recover(),
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: uuid.NewString}),
		echoMid.Logger(),
	)
	if cfg.HTTP.BodyLimit != "" {
		e.Use(echoMid.BodyLimit(cfg.HTTP.BodyLimit))
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.TokenMiddleware(cfg.Auth.Token)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "smsrelay:rl:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	g := e.Group("", authMW, rlMW)

	// device uploads; the extra paths are the device app's older endpoints
	for _, p := range []string{"/messages", "/sms_upload", "/upload-sms"} {
		g.POST(p, s.uploadMessages)
	}
	g.GET("/messages", s.listMessages)
	g.GET("/api/sms", s.listMessages)
	g.GET("/messages/export.xlsx", s.exportMessagesXLSX)

	g.POST("/command", s.setCommand)
	g.POST("/send_sms", s.sendSMS)
	g.GET("/command", s.pollCommand)
	if s.Queue != nil {
		g.GET("/command/queue", s.listQueue)
		g.POST("/command/ack", s.ackCommand)
	}
	g.GET("/history", s.listHistory)

	g.POST("/export", s.uploadExport)
	g.GET("/export/:type/latest", s.latestExport)
	g.GET("/export/:type/parsed", s.parsedExport)

	if s.Reports != nil {
		g.GET("/reports/messages", listReportsHandler(s.Reports))
	}

	s.e = e
	return s
}

func echoLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
