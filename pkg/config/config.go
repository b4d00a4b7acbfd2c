// Package config loads the router's optional operational tuning file: log
// level, poll interval, and read buffer size. None of it is wire-observable
// and none of it is read from the environment (spec: "No environment
// variables").
package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Operational holds the knobs an operator may tune without affecting
// protocol behavior.
type Operational struct {
	LogLevel       string        `mapstructure:"logLevel"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	ReadBufferSize int           `mapstructure:"readBufferSize"`
}

// Defaults returns the operational config used when no -config file is
// given.
func Defaults() Operational {
	return Operational{
		LogLevel:       "info",
		PollInterval:   10 * time.Millisecond,
		ReadBufferSize: 2048,
	}
}

// Load reads path (if non-empty) into an Operational config layered over
// Defaults. Absence of path is not an error. onChange, if non-nil, is
// invoked with the reloaded config whenever the file changes on disk (via
// viper's fsnotify-backed watch), so logLevel can be adjusted live.
func Load(path string, onChange func(Operational)) (Operational, error) {
	v := viper.New()
	cfg := Defaults()
	v.SetDefault("logLevel", cfg.LogLevel)
	v.SetDefault("pollInterval", cfg.PollInterval)
	v.SetDefault("readBufferSize", cfg.ReadBufferSize)

	if path == "" {
		return cfg, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Operational{}, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Operational{}, err
	}

	if onChange != nil {
		v.OnConfigChange(func(_ fsnotify.Event) {
			var reloaded Operational
			if err := v.Unmarshal(&reloaded); err == nil {
				onChange(reloaded)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}

// NewLogger builds a logrus.Logger at the given level, text-formatted with
// full timestamps the way an operator tailing stdout expects.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// SetLevel adjusts logger's level at runtime, used as the OnConfigChange
// callback's effect.
func SetLevel(logger *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	logger.SetLevel(parsed)
}
