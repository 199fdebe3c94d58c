package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server holds master settings.
type Server struct {
	Port     int    `mapstructure:"port"`
	Strategy string `mapstructure:"strategy"`
}

// Controller holds control loop timing.
type Controller struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	EvictionTimeout   time.Duration `mapstructure:"eviction_timeout"`
}

// Agent holds worker settings.
type Agent struct {
	Name              string        `mapstructure:"name"`
	Master            string        `mapstructure:"master"`
	Address           string        `mapstructure:"address"`
	Port              int           `mapstructure:"port"`
	CPUMillis         uint64        `mapstructure:"cpu_millis"`
	MemoryMB          uint64        `mapstructure:"memory_mb"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
}

// Log holds logging settings.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full configuration tree. Values resolve in the usual
// precedence order: flags bound by the CLI, then MARU_* environment
// variables, then an optional maru.yaml, then defaults.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Controller Controller `mapstructure:"controller"`
	Agent      Agent      `mapstructure:"agent"`
	Log        Log        `mapstructure:"log"`
}

// Viper returns a viper instance preloaded with defaults and environment
// wiring. The CLI binds its flags into this before calling Load.
func Viper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.strategy", "first-fit")
	v.SetDefault("controller.reconcile_interval", time.Second)
	v.SetDefault("controller.heartbeat_timeout", 15*time.Second)
	v.SetDefault("controller.eviction_timeout", 60*time.Second)
	v.SetDefault("agent.master", "http://localhost:8080")
	v.SetDefault("agent.port", 8081)
	v.SetDefault("agent.cpu_millis", 4000)
	v.SetDefault("agent.memory_mb", 8192)
	v.SetDefault("agent.heartbeat_interval", 5*time.Second)
	v.SetDefault("agent.sync_interval", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetEnvPrefix("MARU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("maru")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.maru")

	return v
}

// Load reads the optional config file and unmarshals the resolved tree.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Controller.EvictionTimeout <= cfg.Controller.HeartbeatTimeout {
		return nil, fmt.Errorf("eviction timeout (%s) must exceed heartbeat timeout (%s)",
			cfg.Controller.EvictionTimeout, cfg.Controller.HeartbeatTimeout)
	}
	return &cfg, nil
}
