// Package httpapi exposes the daemon's read/control surface over HTTP and
// a single SSE event stream, plus a legacy gorilla/mux-mounted explorer
// surface and a Prometheus /metrics endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/b0ase/clawminer/internal/daemon"
	"github.com/b0ase/clawminer/pkg/errs"
)

// Server wraps an http.Server bound to a chi router built over a Daemon.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	daemon     *daemon.Daemon
	metrics    *metricsCollector
	metricsStop chan struct{}
}

// New builds a Server listening on bind:port, not yet started.
func New(bind string, port int, d *daemon.Daemon) *Server {
	s := &Server{daemon: d, metricsStop: make(chan struct{})}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	s.routes(r)
	r.Mount("/explorer", explorerRoutes(d))

	reg := prometheus.NewRegistry()
	s.metrics = newMetricsCollector(reg, d)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.router = r
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(bind, strconv.Itoa(port)),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the SSE stream is long-lived
	}
	return s
}

// Start binds the listener and serves in the background; it returns once
// bound or on an immediate bind error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errs.Wrapf(errs.ErrUnavailable, "bind http api: %v", err)
	}
	go s.metrics.run(15*time.Second, s.metricsStop)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("httpapi: server error: %v", err)
		}
	}()
	logrus.Infof("httpapi: listening on %s", s.httpServer.Addr)
	return nil
}

// Stop gracefully shuts the server down within a bounded deadline.
func (s *Server) Stop() {
	close(s.metricsStop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Warnf("httpapi: shutdown: %v", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Debugf("httpapi: %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidationReject), errors.Is(err, errs.ErrKeyInvalid), errors.Is(err, errs.ErrProtocolViolation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrUnavailable):
		status = http.StatusOK
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
