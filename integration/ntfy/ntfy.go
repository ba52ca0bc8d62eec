package ntfy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mcp9808/sensor"
)

const DefaultServer = "https://ntfy.sh"

type Config struct {
	Server string `yaml:"server" envconfig:"NTFY_SERVER"`
	Topic  string `yaml:"topic" envconfig:"NTFY_TOPIC"`
}

func (c Config) Enabled() bool {
	return c.Topic != ""
}

type Notify struct {
	url    string
	client *http.Client
}

func New(config Config, client *http.Client) *Notify {
	server := config.Server
	if server == "" {
		server = DefaultServer
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Notify{url: fmt.Sprintf("%s/%s", strings.TrimSuffix(server, "/"), config.Topic), client: client}
}

// Alert sends a notification for a change of the alert level
func (n *Notify) Alert(ctx context.Context, level sensor.Level, reading sensor.Reading) error {
	var description string
	var tags string
	priority := "4"
	switch level {
	case sensor.LevelHigh:
		description = fmt.Sprintf("Temperature on %s is high: %.2f°C", reading.Topic, reading.Celsius)
		tags = "thermometer,fire"
	case sensor.LevelLow:
		description = fmt.Sprintf("Temperature on %s is low: %.2f°C", reading.Topic, reading.Celsius)
		tags = "thermometer,snowflake"
	default:
		description = fmt.Sprintf("Temperature on %s is back to normal: %.2f°C", reading.Topic, reading.Celsius)
		tags = "thermometer,white_check_mark"
		priority = "2"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(description))
	if err != nil {
		return err
	}

	req.Header.Set("Title", "Temperature")
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy: unexpected status %s", resp.Status)
	}

	return nil
}
