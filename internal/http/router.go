// Package httpapi wires the optional ops HTTP server: health, Prometheus
// metrics and read-only views of the migration journal and the running
// migration. The bot itself never needs it.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery
//  5. Metrics
//  6. Rate limiter (per client IP)
//  7. gzip (except /metrics, which negotiates its own encoding)
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/mvthread/internal/config"
	"github.com/tbourn/mvthread/internal/http/handlers"
	"github.com/tbourn/mvthread/internal/http/middleware"
)

// apiBasePath prefixes the journal endpoints.
const apiBasePath = "/api/v1"

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.NewRateLimiter(cfg.Ops.RateRPS, cfg.Ops.RateBurst).Handler())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(apiBasePath)
	{
		api.GET("/migrations", h.ListMigrations)
		api.GET("/migrations/active", h.ActiveMigration)
		api.GET("/migrations/:id", h.GetMigration)
	}
}

// NewRouter builds a Gin engine in cfg.Ops.GinMode with all routes.
func NewRouter(cfg config.Config, journal handlers.JournalService, active handlers.ActiveSource) *gin.Engine {
	gin.SetMode(cfg.Ops.GinMode)
	r := gin.New()
	RegisterRoutes(r, handlers.New(journal, active), cfg)
	return r
}

// Serve runs handler on addr until ctx is canceled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("ops server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
