package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	GPS     GPSConfig     `yaml:"gps"`
	Publish PublishConfig `yaml:"publish"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Forward ForwardConfig `yaml:"forward"`
	Web     WebConfig     `yaml:"web"`
	Debug   bool          `yaml:"debug"`
}

type SerialConfig struct {
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type GPSConfig struct {
	// Source selects how position is ingested: "gpsd" or "nmea"
	// (direct serial receiver). Defaults to "gpsd".
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`

	// Device/Baud apply to Source=="nmea".
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Stationary reads the position once at startup and reuses it for
	// every record.
	Stationary bool `yaml:"stationary"`

	// AcquireWindow bounds the one startup acquisition in stationary
	// mode.
	AcquireWindow time.Duration `yaml:"acquire_window"`
}

type PublishConfig struct {
	Port int `yaml:"port"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type ForwardConfig struct {
	// UDPDest, when set, mirrors every event as one datagram to this
	// host:port.
	UDPDest string `yaml:"udp_dest"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

// Load reads the optional YAML config file, then applies defaults and
// validation. An empty path yields the pure defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects inconsistent ones. It
// is called again after flag overrides are applied.
func DefaultAndValidate(cfg *Config) error {
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be positive")
	}
	if cfg.Serial.ReconnectDelay <= 0 {
		cfg.Serial.ReconnectDelay = 5 * time.Second
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "gpsd"
	}
	switch cfg.GPS.Source {
	case "gpsd":
		if cfg.GPS.GPSDAddr == "" {
			cfg.GPS.GPSDAddr = "127.0.0.1:2947"
		}
	case "nmea":
		if cfg.GPS.Device == "" {
			return fmt.Errorf("gps.device is required when gps.source is nmea")
		}
		if cfg.GPS.Baud == 0 {
			cfg.GPS.Baud = 9600
		}
	default:
		return fmt.Errorf("gps.source must be \"gpsd\" or \"nmea\", got %q", cfg.GPS.Source)
	}
	if cfg.GPS.AcquireWindow <= 0 {
		cfg.GPS.AcquireWindow = 2 * time.Second
	}

	if cfg.Publish.Port == 0 {
		cfg.Publish.Port = 4020
	}
	if cfg.Publish.Port < 0 || cfg.Publish.Port > 65535 {
		return fmt.Errorf("publish.port out of range: %d", cfg.Publish.Port)
	}

	if cfg.MQTT.Enable {
		if cfg.MQTT.Broker == "" {
			cfg.MQTT.Broker = "tcp://localhost:1883"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "fpvbridge"
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "fpv/events"
		}
	}

	if cfg.Web.Enable && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8480"
	}

	return nil
}
