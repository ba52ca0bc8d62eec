package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jellydator/ttlcache/v3"

	"mcp9808/observability"
	"mcp9808/sensor"
)

const (
	notifyTimeout    = 10 * time.Second
	subscribeTimeout = 10 * time.Second
	watchBuffer      = 16
)

type Notifier interface {
	Alert(ctx context.Context, level sensor.Level, reading sensor.Reading) error
}

type Store interface {
	Insert(ctx context.Context, reading sensor.Reading) error
}

type Monitor struct {
	topic      string
	thresholds sensor.Thresholds

	cache    *ttlcache.Cache[string, sensor.Reading]
	notifier Notifier
	store    Store
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	levels   map[string]sensor.Level
	watchers map[chan sensor.Reading]struct{}
}

type Option func(*Monitor)

func WithNotifier(notifier Notifier) Option {
	return func(m *Monitor) {
		m.notifier = notifier
	}
}

func WithStore(store Store) Option {
	return func(m *Monitor) {
		m.store = store
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a monitor for the readings published on topic, a reading is
// considered stale once nothing newer arrived within staleAfter
func New(topic string, thresholds sensor.Thresholds, staleAfter time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		topic:      topic,
		thresholds: thresholds,
		cache:      ttlcache.New[string, sensor.Reading](ttlcache.WithTTL[string, sensor.Reading](staleAfter)),
		logger:     slog.Default(),
		now:        time.Now,
		levels:     make(map[string]sensor.Level),
		watchers:   make(map[chan sensor.Reading]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, sensor.Reading]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}

		m.logger.Warn("Sensor stopped reporting", "topic", item.Key(), "last", item.Value().Time())
		m.metrics.Stale(item.Key())
	})

	return m
}

func (m *Monitor) Topic() string {
	return m.topic
}

// Start runs the expiry loop until ctx is done
func (m *Monitor) Start(ctx context.Context) {
	go m.cache.Start()

	<-ctx.Done()
	m.cache.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.watchers {
		close(ch)
		delete(m.watchers, ch)
	}
}

// Subscribe should be called from the on connect handler so the
// subscription is restored after a reconnect
func (m *Monitor) Subscribe(client paho.Client) error {
	token := client.Subscribe(m.topic, 1, m.Handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return errors.New("subscribe: timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}

	m.logger.Info("Subscribed", "topic", m.topic)
	return nil
}

func (m *Monitor) Handler(_ paho.Client, msg paho.Message) {
	m.Handle(msg.Topic(), msg.Payload())
}

func (m *Monitor) Handle(topic string, payload []byte) {
	reading, err := sensor.ParsePayload(topic, payload, m.now())
	if errors.Is(err, sensor.ErrEmpty) {
		// In this case the retained message was cleared
		return
	} else if err != nil {
		m.logger.Warn("Ignoring message", "topic", topic, "err", err)
		m.metrics.Rejected(topic, "parse")
		return
	}

	if err := reading.Valid(); err != nil {
		m.logger.Warn("Ignoring reading", "topic", topic, "err", err)
		m.metrics.Rejected(topic, "range")
		return
	}

	m.logger.Debug("Reading", "topic", topic, "celsius", reading.Celsius)
	m.cache.Set(topic, reading, ttlcache.DefaultTTL)
	m.metrics.Received(topic, reading.Celsius, reading.Updated)

	if m.store != nil {
		if err := m.store.Insert(context.Background(), reading); err != nil {
			m.logger.Error("Failed to store reading", "topic", topic, "err", err)
		}
	}

	m.broadcast(reading)
	m.evaluate(reading)
}

func (m *Monitor) evaluate(reading sensor.Reading) {
	m.mu.Lock()
	previous := m.levels[reading.Topic]
	level := m.thresholds.Evaluate(previous, reading.Celsius)
	m.levels[reading.Topic] = level
	m.mu.Unlock()

	// Only changes are reported, starting out normal is not a change
	if level == previous {
		return
	}

	m.logger.Info("Alert level changed", "topic", reading.Topic, "from", previous, "to", level, "celsius", reading.Celsius)
	m.metrics.Alert(reading.Topic, level.String())

	if m.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Alert(ctx, level, reading); err != nil {
		m.logger.Error("Failed to send alert", "topic", reading.Topic, "err", err)
	}
}

func (m *Monitor) broadcast(reading sensor.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.watchers {
		select {
		case ch <- reading:
		default:
			m.logger.Warn("Dropping reading for slow watcher", "topic", reading.Topic)
		}
	}
}

// Watch returns a channel that receives every accepted reading, call the
// returned function to stop watching
func (m *Monitor) Watch() (<-chan sensor.Reading, func()) {
	ch := make(chan sensor.Reading, watchBuffer)

	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.watchers[ch]; ok {
				delete(m.watchers, ch)
				close(ch)
			}
		})
	}
}

// Latest returns the newest reading of every topic that is not stale
func (m *Monitor) Latest() []sensor.Reading {
	readings := []sensor.Reading{}
	for _, item := range m.cache.Items() {
		if item.IsExpired() {
			continue
		}
		readings = append(readings, item.Value())
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Topic < readings[j].Topic
	})

	return readings
}

func (m *Monitor) Level(topic string) sensor.Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.levels[topic]
}
