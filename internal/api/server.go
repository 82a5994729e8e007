package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optionflow/config"
	"optionflow/internal/symbols"
	"optionflow/logger"
)

// Server exposes the latest results as JSON and the Prometheus metrics.
type Server struct {
	cfg        config.APIConfig
	version    string
	store      *Store
	metrics    *Metrics
	log        *logger.Log
	httpServer *http.Server
	started    time.Time
}

func NewServer(cfg *config.Config, store *Store, metrics *Metrics) *Server {
	apiCfg := cfg.API
	apiCfg.Address = normalizeAddress(apiCfg.Address)
	return &Server{
		cfg:     apiCfg,
		version: cfg.Optionflow.Version,
		store:   store,
		metrics: metrics,
		log:     logger.GetLogger(),
		started: time.Now(),
	}
}

// Address reports the address the server listens on.
func (s *Server) Address() string { return s.cfg.Address }

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithComponent("api").WithFields(logger.Fields{"address": s.cfg.Address}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Router builds the gin engine; exported for tests and embedding.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": s.version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
		})
	})

	router.GET("/v1/results", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"symbols": s.store.Symbols()})
	})

	router.GET("/v1/results/:symbol", func(c *gin.Context) {
		symbol := symbols.Normalize(c.Param("symbol"))
		r, ok := s.store.Get(symbol)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no result for " + symbol})
			return
		}
		c.JSON(http.StatusOK, r)
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	return router
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}
	if len(addr) > 1 && addr[0] == ':' && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
