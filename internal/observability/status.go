package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Robertof/oxixenon/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AvailabilitySource reports the current renewal gate.
type AvailabilitySource interface {
	Availability() protocol.RenewAvailability
}

type StatusInfo struct {
	Renewer  string
	Notifier string
}

// NewStatusRouter builds the read-only status endpoint served next to the
// session listener.
func NewStatusRouter(logger zerolog.Logger, src AvailabilitySource, info StatusInfo) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	startedAt := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(statusRequests(logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(startedAt).String(),
			"renewer":  info.Renewer,
			"notifier": info.Notifier,
		})
	})
	r.GET("/availability", func(c *gin.Context) {
		a := src.Availability()
		body := gin.H{"available": a.IsAvailable()}
		if !a.IsAvailable() {
			body["reason"] = a.Reason
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// statusRequests logs and records every status request. Unmatched paths are
// collapsed into one label so scanners cannot grow the label set.
func statusRequests(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		event := logger.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("status request")
	}
}

// ServeStatus serves h on ln until ctx is cancelled.
func ServeStatus(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
