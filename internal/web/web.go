// Package web implements serve mode: a small HTTP server publishing one
// iCalendar feed per configured postal code, refreshed on a cron
// schedule from a delivery-date source.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"postgang/internal/bring"
	"postgang/internal/config"
	"postgang/internal/ical"
	appLog "postgang/internal/log"
	"postgang/internal/postal"
)

// Server serves rendered calendars over HTTP. Each configured code has
// an entry in calendars holding the last successfully rendered
// document; a failed refresh keeps the previous document in place so
// subscribers never see an empty feed because of a transient API error.
type Server struct {
	cfg    *config.Config
	source bring.Source
	codes  []postal.Code
	mux    *http.ServeMux

	mu        sync.RWMutex
	calendars map[postal.Code][]byte

	registry       *prometheus.Registry
	refreshTotal   *prometheus.CounterVec
	lastRefreshSec prometheus.Gauge
}

// NewServer constructs a Server for the codes named in cfg.
func NewServer(cfg *config.Config, source bring.Source) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codes := make([]postal.Code, 0, len(cfg.Codes))
	for _, raw := range cfg.Codes {
		code, err := postal.ParseCode(raw)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	s := &Server{
		cfg:       cfg,
		source:    source,
		codes:     codes,
		mux:       http.NewServeMux(),
		calendars: make(map[postal.Code][]byte, len(codes)),
		registry:  prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postgang_refresh_total",
			Help: "Delivery-date refresh attempts by postal code and outcome.",
		}, []string{"code", "outcome"}),
		lastRefreshSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "postgang_last_refresh_timestamp_seconds",
			Help: "Unix time of the last refresh cycle that stored at least one calendar.",
		}),
	}
	s.registry.MustRegister(s.refreshTotal, s.lastRefreshSec)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar/", s.handleCalendar)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the HTTP handler, wrapped in basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware protects all endpoints except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="postgang", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// handleCalendar serves GET /calendar/{code}.ics.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/calendar/")
	raw, found := strings.CutSuffix(name, ".ics")
	if !found {
		http.NotFound(w, r)
		return
	}
	code, err := postal.ParseCode(raw)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	doc, ok := s.calendars[code]
	s.mu.RUnlock()
	if !ok {
		// Configured codes without a successful refresh yet, and codes
		// that are not configured at all, both end up here.
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write(doc)
}

// RefreshAll fetches delivery dates for every configured code and
// replaces the stored calendars. A failure for one code is logged and
// counted but does not block the others, and the previously stored
// document for that code is kept.
func (s *Server) RefreshAll(ctx context.Context) error {
	var failed int
	var stored int
	for _, code := range s.codes {
		if err := s.refreshOne(ctx, code); err != nil {
			failed++
			s.refreshTotal.WithLabelValues(code.String(), "error").Inc()
			appLog.Error("refresh failed; keeping previous calendar", err, "code", code)
			continue
		}
		stored++
		s.refreshTotal.WithLabelValues(code.String(), "success").Inc()
	}
	if stored > 0 {
		s.lastRefreshSec.Set(float64(time.Now().Unix()))
	}
	if failed > 0 {
		return fmt.Errorf("web: refresh failed for %d of %d codes", failed, len(s.codes))
	}
	return nil
}

func (s *Server) refreshOne(ctx context.Context, code postal.Code) error {
	dates, err := s.source.DeliveryDates(ctx, code)
	if err != nil {
		return err
	}

	doc := []byte(ical.New(dates, nil).String())

	s.mu.Lock()
	s.calendars[code] = doc
	s.mu.Unlock()

	appLog.Info("calendar refreshed", "code", code, "date_count", len(dates), "bytes", len(doc))
	return nil
}

// Run performs an initial refresh, starts the cron schedule, and serves
// HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.RefreshAll(ctx); err != nil {
		// Partial or total failure at startup is not fatal; the cron
		// schedule will retry.
		appLog.Error("initial refresh incomplete", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Refresh, func() {
		if err := s.RefreshAll(ctx); err != nil {
			appLog.Error("scheduled refresh incomplete", err)
		}
	}); err != nil {
		return fmt.Errorf("web: invalid refresh schedule %q: %w", s.cfg.Refresh, err)
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "listen", s.cfg.Listen, "codes", len(s.codes))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
