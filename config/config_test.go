package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mcp9808/integration/mqtt"
)

var keys = []string{
	"WIFI_SSID", "WIFI_PASSWORD", "MQTT_SERVER", "MQTT_PORT", "MQTT_USERNAME", "MQTT_PASSWORD",
	"MQTT_CLIENT_ID", "MCP9808_1_TOPIC", "ALERT_UPPER", "ALERT_LOWER", "ALERT_HYSTERESIS",
	"NTFY_SERVER", "NTFY_TOPIC", "MONITOR_STALE_AFTER", "HTTP_ADDRESS", "DATABASE_FILE",
	"LOG_LEVEL", "FIRMWARE_GUARD",
}

// isolate makes sure the environment of the machine running the tests does
// not leak into the config
func isolate(t *testing.T) {
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("WIFI_PASSWORD", "passphrase")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "iot_wireless", cfg.WiFi.SSID)
	assert.Equal(t, "passphrase", cfg.WiFi.Password.Reveal())
	assert.Equal(t, "raspberrypi.local", cfg.MQTT.Server)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "room/temperature", cfg.Topics.MCP9808)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.StaleAfter)
	assert.Equal(t, "raspberrypi.local:1883", cfg.MQTT.Endpoint())
}

func TestPasswordIsRequired(t *testing.T) {
	isolate(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WIFI_PASSWORD must be set")
}

func TestFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, `
wifi:
  ssid: lab
  password: from-file
mqtt:
  server: broker.lan
  port: 1884
topics:
  mcp9808_1: lab/bench/temperature
monitor:
  stale_after: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.WiFi.SSID)
	assert.Equal(t, "from-file", cfg.WiFi.Password.Reveal())
	assert.Equal(t, "broker.lan:1884", cfg.MQTT.Endpoint())
	assert.Equal(t, "lab/bench/temperature", cfg.Topics.MCP9808)
	assert.Equal(t, 30*time.Second, cfg.Monitor.StaleAfter)
	// Untouched by the file
	assert.Equal(t, 30.0, cfg.Alert.Upper)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, "wifi:\n  ssid: lab\nmqtt:\n  server: broker.lan\n")

	t.Setenv("WIFI_SSID", "iot")
	t.Setenv("WIFI_PASSWORD", "secret\n")
	t.Setenv("MQTT_SERVER", "mosquitto")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("MCP9808_1_TOPIC", "office/temperature")
	t.Setenv("ALERT_UPPER", "26.5")
	t.Setenv("MONITOR_STALE_AFTER", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "iot", cfg.WiFi.SSID)
	assert.Equal(t, "secret", cfg.WiFi.Password.Reveal())
	assert.Equal(t, "mosquitto:8883", cfg.MQTT.Endpoint())
	assert.Equal(t, "office/temperature", cfg.Topics.MCP9808)
	assert.Equal(t, 26.5, cfg.Alert.Upper)
	assert.Equal(t, time.Minute, cfg.Monitor.StaleAfter)
}

func TestLoadIsIdempotent(t *testing.T) {
	isolate(t)
	t.Setenv("WIFI_PASSWORD", "passphrase")
	path := writeFile(t, "mqtt:\n  port: 1883\n")

	first, err := Load(path)
	require.NoError(t, err)
	second, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
		err  string
	}{
		{name: "port not a number", env: map[string]string{"MQTT_PORT": "mqtt"}, err: "MQTT_PORT"},
		{name: "port out of range", env: map[string]string{"MQTT_PORT": "70000"}, err: "MQTT_PORT 70000"},
		{name: "empty server", file: "mqtt:\n  server: \"\"\n", err: "MQTT_SERVER must be set"},
		{name: "empty ssid", file: "wifi:\n  ssid: \"\"\n", err: "WIFI_SSID must be set"},
		{name: "empty topic", env: map[string]string{"MCP9808_1_TOPIC": ""}, err: "MCP9808_1_TOPIC must be set"},
		{name: "topic whitespace", env: map[string]string{"MCP9808_1_TOPIC": "room/temperature "}, err: "whitespace"},
		{name: "topic wildcard", env: map[string]string{"MCP9808_1_TOPIC": "room/#"}, err: "wildcard"},
		{name: "topic empty level", env: map[string]string{"MCP9808_1_TOPIC": "room//temperature"}, err: "empty level"},
		{name: "unknown key", file: "wfii:\n  ssid: typo\n", err: "wfii"},
		{name: "bad yaml", file: "wifi: [\n", err: "failed to parse config file"},
		{name: "inverted limits", env: map[string]string{"ALERT_UPPER": "5"}, err: "lower limit"},
		{name: "no staleness", env: map[string]string{"MONITOR_STALE_AFTER": "0s"}, err: "MONITOR_STALE_AFTER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("WIFI_PASSWORD", "passphrase")
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	require.Error(t, err)

	for _, name := range []string{"WIFI_SSID", "WIFI_PASSWORD", "MQTT_SERVER", "MQTT_PORT", "MCP9808_1_TOPIC"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyFile(t *testing.T) {
	isolate(t)
	t.Setenv("WIFI_PASSWORD", "passphrase")

	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().MQTT, cfg.MQTT)
}

func TestConstants(t *testing.T) {
	cfg := Default()
	cfg.WiFi.Password = "passphrase"

	constants := cfg.Constants()
	require.Len(t, constants, 5)

	seen := make(map[string]int)
	for _, c := range constants {
		seen[c.Name]++
		assert.NotEmpty(t, c.Value, c.Name)
	}
	for _, name := range []string{NameWiFiSSID, NameWiFiPassword, NameMQTTServer, NameMQTTPort, NameMCP9808Topic} {
		assert.Equal(t, 1, seen[name], name)
	}

	port := constants[3]
	assert.Equal(t, NameMQTTPort, port.Name)
	assert.Equal(t, KindInteger, port.Kind)
	assert.Equal(t, "1883", port.Value)

	topic := constants[4]
	assert.Equal(t, strings.TrimSpace(topic.Value), topic.Value)
	segments := mqtt.Segments(topic.Value)
	assert.Len(t, segments, 2)
	for _, segment := range segments {
		assert.NotEmpty(t, segment)
	}

	assert.True(t, constants[1].Secret)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.WiFi.Password = "passphrase"
	cfg.MQTT.Username = "sensor"
	cfg.MQTT.Password = "hunter2"

	redacted := cfg.Redacted()

	dump := pretty.Sprint(redacted)
	assert.NotContains(t, dump, "passphrase")
	assert.NotContains(t, dump, "hunter2")
	assert.Contains(t, dump, "sensor")

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "passphrase")

	assert.NotContains(t, fmt.Sprintf("%v %+v", cfg, *cfg), "passphrase")

	// The original is left alone
	assert.Equal(t, "passphrase", cfg.WiFi.Password.Reveal())
}
