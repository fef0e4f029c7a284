package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from every variable; a double underscore separates
// sections, so BRIDGE_MQTT__BROKER_URL sets mqtt.broker_url.
const EnvPrefix = "BRIDGE_"

type Config struct {
	MQTT   MQTTConfig   `koanf:"mqtt"`
	Influx InfluxConfig `koanf:"influx"`
	HTTP   HTTPConfig   `koanf:"http"`
	Log    LogConfig    `koanf:"log"`
}

type MQTTConfig struct {
	BrokerURL string `koanf:"broker_url" validate:"required,url"`
	ClientID  string `koanf:"client_id"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Topic     string `koanf:"topic" validate:"required"`
	QoS       int    `koanf:"qos" validate:"gte=0,lte=2"`
	// MaxDepth bounds payload nesting.
	MaxDepth       int           `koanf:"max_depth" validate:"gte=1"`
	ConnectBackoff time.Duration `koanf:"connect_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `koanf:"max_backoff" validate:"gtefield=ConnectBackoff"`
}

type InfluxConfig struct {
	URL          string        `koanf:"url" validate:"required,url"`
	Token        string        `koanf:"token" validate:"required"`
	Org          string        `koanf:"org" validate:"required"`
	Bucket       string        `koanf:"bucket" validate:"required"`
	Measurement  string        `koanf:"measurement" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Load reads an optional .env file, then BRIDGE_* variables, applies defaults
// and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return FromKoanf(k)
}

// FromKoanf unmarshals, defaults and validates an already loaded koanf tree.
func FromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "sensor-bridge-" + uuid.NewString()[:8]
	}
	if c.MQTT.MaxDepth == 0 {
		c.MQTT.MaxDepth = 64
	}
	if c.MQTT.ConnectBackoff == 0 {
		c.MQTT.ConnectBackoff = 2 * time.Second
	}
	if c.MQTT.MaxBackoff == 0 {
		c.MQTT.MaxBackoff = 30 * time.Second
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = "sensor_data"
	}
	if c.Influx.WriteTimeout == 0 {
		c.Influx.WriteTimeout = 5 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8000"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// String is safe to log: secrets are redacted.
func (c *Config) String() string {
	return fmt.Sprintf("mqtt=%s topic=%s qos=%d client=%s user=%s influx=%s org=%s bucket=%s measurement=%s token=%s http=%s",
		c.MQTT.BrokerURL, c.MQTT.Topic, c.MQTT.QoS, c.MQTT.ClientID, c.MQTT.Username,
		c.Influx.URL, c.Influx.Org, c.Influx.Bucket, c.Influx.Measurement, redact(c.Influx.Token),
		c.HTTP.Addr)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
