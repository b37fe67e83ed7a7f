package adminhttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultListen is the admin endpoint address.
const DefaultListen = "127.0.0.1:9464"

// Config configures the admin HTTP module.
type Config struct {
	Listen   string
	Identity string
	Modules  []string
}

// Module serves Prometheus metrics and a health probe.
type Module struct {
	log     *zap.Logger
	config  Config
	started time.Time
}

type healthBody struct {
	Status   string   `json:"status"`
	Identity string   `json:"identity,omitempty"`
	Modules  []string `json:"modules"`
	UptimeS  int64    `json:"uptime_s"`
}

// NewModule creates the admin HTTP module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return nil, err
	}
	return &Module{log: log, config: cfg, started: time.Now()}, nil
}

// Handler returns the admin router.
func (m *Module) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", m.health)
	return r
}

// Run serves until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              m.config.Listen,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	m.log.Info("admin http listening", zap.String("listen", m.config.Listen))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			m.log.Warn("admin http shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (m *Module) health(w http.ResponseWriter, _ *http.Request) {
	modules := m.config.Modules
	if modules == nil {
		modules = []string{}
	}
	body := healthBody{
		Status:   "ok",
		Identity: m.config.Identity,
		Modules:  modules,
		UptimeS:  int64(time.Since(m.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		m.log.Warn("health encode", zap.Error(err))
	}
}
