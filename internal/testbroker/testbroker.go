// Package testbroker runs an in-process MQTT broker for tests.
package testbroker

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type Broker struct {
	Host string
	Port int

	server *mochi.Server
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

// Start runs a broker on a free local port, it is closed when the test ends
func Start(t *testing.T) *Broker {
	t.Helper()

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	b := &Broker{Host: "127.0.0.1", Port: freePort(t), server: server}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("test-%d", b.Port),
		Address: b.Endpoint(),
	})
	require.NoError(t, server.AddListener(tcp))

	go func() {
		if err := server.Serve(); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = server.Close()
	})

	// The listener accepts in the background
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", b.Endpoint(), 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	return b
}

func (b *Broker) Endpoint() string {
	return net.JoinHostPort(b.Host, fmt.Sprint(b.Port))
}

// Publish injects a message as if a device had sent it
func (b *Broker) Publish(t *testing.T, topic string, payload []byte, retained bool) {
	t.Helper()

	require.NoError(t, b.server.Publish(topic, payload, retained, 1))
}

// Subscribe returns a channel that receives everything published on filter
func (b *Broker) Subscribe(t *testing.T, filter string) <-chan Message {
	t.Helper()

	messages := make(chan Message, 16)
	err := b.server.Subscribe(filter, 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		messages <- Message{
			Topic:    pk.TopicName,
			Payload:  append([]byte(nil), pk.Payload...),
			Retained: pk.FixedHeader.Retain,
		}
	})
	require.NoError(t, err)

	return messages
}
