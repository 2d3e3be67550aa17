// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	SQLite struct {
		Path string
	} `mapstructure:"sqlite"`

	FX struct {
		URL     string
		Timeout time.Duration
	} `mapstructure:"fx"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

// Load reads the config file at path. Environment variables prefixed with
// HOURS_ override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HOURS")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("sqlite.path", "./data/hours.db")
	v.SetDefault("fx.timeout", 5*time.Second)
	v.SetDefault("metrics.enabled", true)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
