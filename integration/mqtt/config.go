package mqtt

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"mcp9808/secret"
)

const DefaultPort = 1883

type Config struct {
	Server   string        `yaml:"server" envconfig:"MQTT_SERVER"`
	Port     int           `yaml:"port" envconfig:"MQTT_PORT"`
	Username string        `yaml:"username" envconfig:"MQTT_USERNAME"`
	Password secret.String `yaml:"password" envconfig:"MQTT_PASSWORD"`
	ClientID string        `yaml:"client_id" envconfig:"MQTT_CLIENT_ID"`
}

// Endpoint is the host:port pair of the broker, e.g. raspberrypi.local:1883
func (c Config) Endpoint() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

func (c Config) BrokerURL() string {
	return "tcp://" + c.Endpoint()
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server) == "" {
		errs = append(errs, errors.New("MQTT_SERVER must be set"))
	} else if c.Server != strings.TrimSpace(c.Server) {
		errs = append(errs, fmt.Errorf("MQTT_SERVER %q has surrounding whitespace", c.Server))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("MQTT_PORT %d is not a valid TCP port", c.Port))
	}

	if c.Username == "" && !c.Password.IsZero() {
		errs = append(errs, errors.New("MQTT_PASSWORD is set without MQTT_USERNAME"))
	}

	return errors.Join(errs...)
}
