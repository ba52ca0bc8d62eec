package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp9808/config"
	"mcp9808/monitor"
	"mcp9808/observability"
	"mcp9808/sensor"
)

type fakeHistory struct {
	topic string
	limit int
	err   error
}

func (h *fakeHistory) Recent(_ context.Context, topic string, limit int) ([]sensor.Reading, error) {
	h.topic = topic
	h.limit = limit
	if h.err != nil {
		return nil, h.err
	}

	return []sensor.Reading{{Topic: topic, Celsius: 20, Updated: 1}}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WiFi.Password = "passphrase"

	return cfg
}

func newServer(t *testing.T, opts ...Option) (*Server, *monitor.Monitor, *prometheus.Registry) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	m := monitor.New(cfg.Topics.MCP9808, cfg.Alert, time.Minute,
		monitor.WithLogger(observability.NopLogger()),
		monitor.WithMetrics(observability.NewMetrics(registry)))

	opts = append([]Option{WithGatherer(registry), WithLogger(observability.NopLogger())}, opts...)
	return New(cfg, m, opts...), m, registry
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestLatest(t *testing.T) {
	s, m, _ := newServer(t)

	rec := get(t, s.Handler(), "/api/readings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	m.Handle("room/temperature", []byte(`{"temperature": 21.5, "updated": 1000}`))

	rec = get(t, s.Handler(), "/api/readings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"topic": "room/temperature", "temperature": 21.5, "updated": 1000}]`, rec.Body.String())
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, []float64{math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEqual(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{}
	s, _, _ := newServer(t, WithHistory(history))

	rec := get(t, s.Handler(), "/api/readings/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "room/temperature", history.topic)
	assert.Equal(t, 0, history.limit)

	rec = get(t, s.Handler(), "/api/readings/history?topic=lab/temperature&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lab/temperature", history.topic)
	assert.Equal(t, 5, history.limit)

	rec = get(t, s.Handler(), "/api/readings/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	history.err = errors.New("disk full")
	rec = get(t, s.Handler(), "/api/readings/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestHistoryDisabled(t *testing.T) {
	s, _, _ := newServer(t)

	rec := get(t, s.Handler(), "/api/readings/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigIsRedacted(t *testing.T) {
	s, _, _ := newServer(t)

	rec := get(t, s.Handler(), "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "passphrase")

	var body struct {
		WiFi struct {
			SSID     string
			Password string
		}
		MQTT struct {
			Server string
			Port   int
		}
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "iot_wireless", body.WiFi.SSID)
	assert.Equal(t, "********", body.WiFi.Password)
	assert.Equal(t, "raspberrypi.local", body.MQTT.Server)
	assert.Equal(t, 1883, body.MQTT.Port)
}

func TestMetricsAndHealth(t *testing.T) {
	s, m, _ := newServer(t)
	m.Handle("room/temperature", []byte("21.5"))

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mcp9808_temperature_celsius{topic="room/temperature"} 21.5`)

	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/readings", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEvents(t *testing.T) {
	s, m, _ := newServer(t)

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	// Cancelled before the server closes so the stream is not left hanging
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Forward(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events?stream=readings", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Keep publishing until the stream delivers, Forward subscribes asynchronously
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Handle("room/temperature", []byte(`{"temperature": 22.5, "updated": 2000}`))
			}
		}
	}()

	data := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				data <- line
				return
			}
		}
	}()

	select {
	case line := <-data:
		assert.JSONEq(t, `{"topic": "room/temperature", "temperature": 22.5, "updated": 2000}`, line)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestListenAndServeStops(t *testing.T) {
	s, _, _ := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
