package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	clientIDPrefix = "mcp9808"
	connectTimeout = 10 * time.Second
	quiesce        = 250
)

type Client = paho.Client

type options struct {
	logger         *slog.Logger
	connectTimeout time.Duration
	onConnect      paho.OnConnectHandler
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithOnConnect is called after every (re)connect, subscriptions should be
// made here so they survive a reconnect
func WithOnConnect(handler paho.OnConnectHandler) Option {
	return func(o *options) {
		o.onConnect = handler
	}
}

func ClientID(config Config) string {
	if config.ClientID != "" {
		return config.ClientID
	}

	return fmt.Sprintf("%s-%s", clientIDPrefix, uuid.NewString())
}

func New(config Config, opts ...Option) (paho.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default(), connectTimeout: connectTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	clientID := ClientID(config)
	logger := o.logger.With("broker", config.Endpoint(), "client_id", clientID)

	pahoOpts := paho.NewClientOptions().AddBroker(config.BrokerURL())
	pahoOpts.SetClientID(clientID)
	pahoOpts.SetOrderMatters(false)
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetConnectTimeout(o.connectTimeout)
	pahoOpts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		logger.Debug("Unhandled message", "topic", msg.Topic(), "payload", string(msg.Payload()))
	})
	if config.Username != "" {
		pahoOpts.SetUsername(config.Username)
		pahoOpts.SetPassword(config.Password.Reveal())
	}

	pahoOpts.SetOnConnectHandler(func(c paho.Client) {
		logger.Info("Connected to broker")
		if o.onConnect != nil {
			o.onConnect(c)
		}
	})
	pahoOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("Connection to broker lost", "err", err)
	})

	client := paho.NewClient(pahoOpts)
	token := client.Connect()
	if !token.WaitTimeout(o.connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timed out after %s", config.Endpoint(), o.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Endpoint(), err)
	}

	return client, nil
}

// Publish sends payload at QoS 1 and waits for the broker to acknowledge it
// or ctx to be done
func Publish(ctx context.Context, client paho.Client, topic string, retained bool, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}

	token := client.Publish(topic, 1, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

func Delete(client paho.Client) {
	client.Disconnect(quiesce)
}
