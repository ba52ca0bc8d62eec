package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r3labs/sse/v2"

	"mcp9808/config"
	"mcp9808/sensor"
)

const (
	stream          = "readings"
	shutdownTimeout = 5 * time.Second
	maxLimit        = 1000
)

type Readings interface {
	Topic() string
	Latest() []sensor.Reading
	Watch() (<-chan sensor.Reading, func())
}

type History interface {
	Recent(ctx context.Context, topic string, limit int) ([]sensor.Reading, error)
}

type Server struct {
	config   *config.Config
	readings Readings
	history  History
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	events *sse.Server
	router *mux.Router
}

type Option func(*Server)

func WithHistory(history History) Option {
	return func(s *Server) {
		s.history = history
	}
}

func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(cfg *config.Config, readings Readings, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		readings: readings,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		events:   sse.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Clients only care about readings from the moment they connect
	s.events.AutoReplay = false
	s.events.CreateStream(stream)

	r := mux.NewRouter()
	r.HandleFunc("/api/readings", s.latest).Methods(http.MethodGet)
	r.HandleFunc("/api/readings/history", s.recent).Methods(http.MethodGet)
	r.HandleFunc("/api/config", s.redactedConfig).Methods(http.MethodGet)
	r.Handle("/events", s.events).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Forward pushes every reading to the event stream until ctx is done
func (s *Server) Forward(ctx context.Context) {
	readings, stop := s.readings.Watch()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case reading, ok := <-readings:
			if !ok {
				return
			}

			data, err := json.Marshal(reading)
			if err != nil {
				s.logger.Error("Failed to encode reading", "err", err)
				continue
			}
			s.events.Publish(stream, &sse.Event{Data: data})
		}
	}
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.Forward(ctx)

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	// Event streams never finish on their own
	s.events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) latest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.readings.Latest())
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = s.readings.Topic()
	}

	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		var err error
		limit, err = strconv.Atoi(value)
		if err != nil || limit < 1 || limit > maxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
	}

	readings, err := s.history.Recent(r.Context(), topic, limit)
	if err != nil {
		s.logger.Error("Failed to query history", "topic", topic, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) redactedConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Redacted())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
