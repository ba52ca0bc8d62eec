package firmware

import (
	"errors"

	"mcp9808/config"
	"mcp9808/secret"
)

// ToConfig takes the firmware constants from a parsed header, everything
// else keeps its default
func ToConfig(d Defines) (*config.Config, error) {
	cfg := config.Default()

	var errs []error
	str := func(name string, dst *string) {
		value, err := d.String(name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = value
	}

	var password string
	str(config.NameWiFiSSID, &cfg.WiFi.SSID)
	str(config.NameWiFiPassword, &password)
	str(config.NameMQTTServer, &cfg.MQTT.Server)
	str(config.NameMCP9808Topic, &cfg.Topics.MCP9808)
	cfg.WiFi.Password = secret.String(password)

	port, err := d.Int(config.NameMQTTPort)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MQTT.Port = port
	}

	if guard, ok := d.Guard(); ok {
		cfg.Firmware.Guard = guard
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
