package config

import "strconv"

const (
	NameWiFiSSID     = "WIFI_SSID"
	NameWiFiPassword = "WIFI_PASSWORD"
	NameMQTTServer   = "MQTT_SERVER"
	NameMQTTPort     = "MQTT_PORT"
	NameMCP9808Topic = "MCP9808_1_TOPIC"
)

type Kind int

const (
	KindString Kind = iota
	KindInteger
)

type Section int

const (
	SectionWiFi Section = iota
	SectionMQTT
	SectionTopics
)

// Constant is one of the values compiled into the firmware
type Constant struct {
	Name    string
	Value   string
	Kind    Kind
	Section Section
	Secret  bool
	Comment string
}

// Constants lists the firmware constants in the order they appear in the
// header. Secret values are revealed here, callers must not log them.
func (c *Config) Constants() []Constant {
	return []Constant{
		{Name: NameWiFiSSID, Value: c.WiFi.SSID, Kind: KindString, Section: SectionWiFi},
		{Name: NameWiFiPassword, Value: c.WiFi.Password.Reveal(), Kind: KindString, Section: SectionWiFi, Secret: true},
		{Name: NameMQTTServer, Value: c.MQTT.Server, Kind: KindString, Section: SectionMQTT},
		{Name: NameMQTTPort, Value: strconv.Itoa(c.MQTT.Port), Kind: KindInteger, Section: SectionMQTT},
		{Name: NameMCP9808Topic, Value: c.Topics.MCP9808, Kind: KindString, Section: SectionTopics, Comment: "topic of MCP9808 1"},
	}
}
