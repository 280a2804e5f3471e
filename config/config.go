// Package config loads sandtable settings from defaults, an optional YAML
// file, a .env file and SANDTABLE_ environment variables, in rising priority.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jt05610/sandtable/comm/serial"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/kinematics"
	"github.com/jt05610/sandtable/pattern"
	"github.com/jt05610/sandtable/transport"
	"github.com/spf13/viper"
)

const EnvPrefix = "SANDTABLE"

const (
	BackendBolt  = "bolt"
	BackendCouch = "couch"
)

type Config struct {
	Serial      SerialConfig           `mapstructure:"serial"`
	Transport   TransportConfig        `mapstructure:"transport"`
	Calibration kinematics.Calibration `mapstructure:"calibration"`
	Patterns    PatternsConfig         `mapstructure:"patterns"`
	State       StateConfig            `mapstructure:"state"`
	Playlists   PlaylistsConfig        `mapstructure:"playlists"`
	AMQP        AMQPConfig             `mapstructure:"amqp"`
	Broadcast   BroadcastConfig        `mapstructure:"broadcast"`
}

type SerialConfig struct {
	Port        string   `mapstructure:"port"`
	Baud        int      `mapstructure:"baud"`
	IgnorePorts []string `mapstructure:"ignore_ports"`
}

type TransportConfig struct {
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	BannerWait     time.Duration `mapstructure:"banner_wait"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type PatternsConfig struct {
	Dir              string `mapstructure:"dir"`
	pattern.ClearSet `mapstructure:",squash"`
}

type StateConfig struct {
	Path string `mapstructure:"path"`
}

type PlaylistsConfig struct {
	Backend  string `mapstructure:"backend"`
	CouchURI string `mapstructure:"couch_uri"`
	CouchDB  string `mapstructure:"couch_db"`
}

type AMQPConfig struct {
	URI      string `mapstructure:"uri"`
	Exchange string `mapstructure:"exchange"`
	DeviceID string `mapstructure:"device_id"`
}

type BroadcastConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	t := transport.DefaultConfig()
	cs := pattern.DefaultClearSet()
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", t.Baud)
	v.SetDefault("serial.ignore_ports", serial.DefaultIgnore)
	v.SetDefault("transport.ack_timeout", t.AckTimeout)
	v.SetDefault("transport.retry_interval", t.RetryInterval)
	v.SetDefault("transport.status_interval", t.StatusInterval)
	v.SetDefault("transport.banner_wait", t.BannerWait)
	v.SetDefault("transport.max_retries", 0)
	v.SetDefault("calibration.x_steps_per_mm", 256)
	v.SetDefault("calibration.y_steps_per_mm", 180)
	v.SetDefault("calibration.gear_ratio", 10)
	v.SetDefault("calibration.feed_rate", 350)
	v.SetDefault("patterns.dir", "./patterns")
	v.SetDefault("patterns.clear_from_in", cs.FromIn)
	v.SetDefault("patterns.clear_from_out", cs.FromOut)
	v.SetDefault("patterns.clear_sideways", cs.Sideways)
	v.SetDefault("state.path", "./sandtable.db")
	v.SetDefault("playlists.backend", BackendBolt)
	v.SetDefault("playlists.couch_uri", "")
	v.SetDefault("playlists.couch_db", "playlists")
	v.SetDefault("amqp.uri", "")
	v.SetDefault("amqp.exchange", "topic_devices")
	v.SetDefault("amqp.device_id", "sandtable")
	v.SetDefault("broadcast.interval", time.Second)
}

// Load reads the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read .env file",
			"Check the KEY=value syntax of .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found: "+path,
					"Check the path passed with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	checks := []struct {
		ok   bool
		name string
	}{
		{c.Serial.Baud > 0, "serial.baud"},
		{c.Calibration.XStepsPerMM > 0, "calibration.x_steps_per_mm"},
		{c.Calibration.YStepsPerMM > 0, "calibration.y_steps_per_mm"},
		{c.Calibration.GearRatio > 0, "calibration.gear_ratio"},
		{c.Calibration.FeedRate > 0, "calibration.feed_rate"},
		{c.Transport.AckTimeout > 0, "transport.ack_timeout"},
		{c.Transport.StatusInterval > 0, "transport.status_interval"},
		{c.Transport.MaxRetries >= 0, "transport.max_retries"},
	}
	for _, check := range checks {
		if !check.ok {
			return errors.New(errors.ErrConfig, check.name+" is out of range", "Fix "+check.name+" in the config file or environment")
		}
	}
	switch c.Playlists.Backend {
	case BackendBolt:
	case BackendCouch:
		if c.Playlists.CouchURI == "" {
			return errors.New(errors.ErrConfig, "playlists.couch_uri is required for the couch backend",
				"Set "+EnvPrefix+"_PLAYLISTS_COUCH_URI")
		}
	default:
		return errors.New(errors.ErrConfig, "unknown playlists backend: "+c.Playlists.Backend,
			"Use "+BackendBolt+" or "+BackendCouch)
	}
	return nil
}

// TransportConfig merges the serial and transport sections.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Port:           c.Serial.Port,
		Baud:           c.Serial.Baud,
		IgnorePorts:    c.Serial.IgnorePorts,
		AckTimeout:     c.Transport.AckTimeout,
		RetryInterval:  c.Transport.RetryInterval,
		StatusInterval: c.Transport.StatusInterval,
		BannerWait:     c.Transport.BannerWait,
		MaxRetries:     c.Transport.MaxRetries,
	}
}
