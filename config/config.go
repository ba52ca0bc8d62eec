package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"mcp9808/integration/mqtt"
	"mcp9808/integration/ntfy"
	"mcp9808/secret"
	"mcp9808/sensor"
)

type WiFi struct {
	SSID     string        `yaml:"ssid" envconfig:"WIFI_SSID"`
	Password secret.String `yaml:"password" envconfig:"WIFI_PASSWORD"`
}

type Topics struct {
	// Topic the first MCP9808 publishes its readings on
	MCP9808 string `yaml:"mcp9808_1" envconfig:"MCP9808_1_TOPIC"`
}

type Monitor struct {
	StaleAfter time.Duration `yaml:"stale_after" envconfig:"MONITOR_STALE_AFTER"`
}

type HTTP struct {
	Address string `yaml:"address" envconfig:"HTTP_ADDRESS"`
}

type Firmware struct {
	Guard string `yaml:"guard" envconfig:"FIRMWARE_GUARD"`
}

// Config is loaded once at startup and shared by pointer, nothing modifies it
// after Load returns
type Config struct {
	WiFi   WiFi        `yaml:"wifi"`
	MQTT   mqtt.Config `yaml:"mqtt"`
	Topics Topics      `yaml:"topics"`

	Alert    sensor.Thresholds `yaml:"alert"`
	Ntfy     ntfy.Config       `yaml:"ntfy"`
	Monitor  Monitor           `yaml:"monitor"`
	HTTP     HTTP              `yaml:"http"`
	Database string            `yaml:"database" envconfig:"DATABASE_FILE"`
	LogLevel string            `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Firmware Firmware          `yaml:"firmware"`
}

func Default() *Config {
	return &Config{
		WiFi: WiFi{
			SSID: "iot_wireless",
		},
		MQTT: mqtt.Config{
			Server: "raspberrypi.local",
			Port:   mqtt.DefaultPort,
		},
		Topics: Topics{
			MCP9808: "room/temperature",
		},
		Alert: sensor.Thresholds{
			Upper:      30,
			Lower:      10,
			Hysteresis: 0.5,
		},
		Ntfy: ntfy.Config{
			Server: ntfy.DefaultServer,
		},
		Monitor: Monitor{
			StaleAfter: 5 * time.Minute,
		},
		HTTP: HTTP{
			Address: ":8090",
		},
		LogLevel: "INFO",
		Firmware: Firmware{
			Guard: "CREDENTIALS_H",
		},
	}
}

// Load builds the config from the defaults, the yaml file at path (skipped
// if path is empty) and finally the environment. The environment is where
// secrets are expected to come from.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.WiFi.SSID == "" {
		errs = append(errs, errors.New("WIFI_SSID must be set"))
	}
	if c.WiFi.Password.IsZero() {
		errs = append(errs, errors.New("WIFI_PASSWORD must be set"))
	}

	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Topics.MCP9808 == "" {
		errs = append(errs, errors.New("MCP9808_1_TOPIC must be set"))
	} else if err := mqtt.ValidateTopic(c.Topics.MCP9808); err != nil {
		errs = append(errs, fmt.Errorf("MCP9808_1_TOPIC: %w", err))
	}

	if err := c.Alert.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Monitor.StaleAfter <= 0 {
		errs = append(errs, errors.New("MONITOR_STALE_AFTER must be positive"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy that is safe to dump, secrets are replaced by the
// mask itself since reflection based printers do not use String
func (c *Config) Redacted() Config {
	r := *c
	r.WiFi.Password = secret.String(c.WiFi.Password.String())
	r.MQTT.Password = secret.String(c.MQTT.Password.String())

	return r
}
