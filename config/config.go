// Package config loads the broker facade configuration from a YAML file,
// the environment and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/facade"
)

// Config defines the configuration schema.
type Config struct {
	Broker      BrokerConfig  `yaml:"broker"`
	ChainID     uint64        `yaml:"chain_id"`
	DAppAddress string        `yaml:"dapp_address"`
	Log         LogConfig     `yaml:"log"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// BrokerConfig holds the broker connection settings.
type BrokerConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	ConsumeTimeout    time.Duration `yaml:"consume_timeout"`
	BackoffMaxElapsed time.Duration `yaml:"backoff_max_elapsed"`
	PostgresTable     string        `yaml:"postgres_table"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the metrics server settings. An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Endpoint:          "redis://127.0.0.1:6379",
			ConsumeTimeout:    0,
			BackoffMaxElapsed: 2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables that are set.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("BROKER_ENDPOINT"); v != "" {
		cfg.Broker.Endpoint = v
	}
	if v := getenv("BROKER_CONSUME_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BROKER_CONSUME_TIMEOUT: %w", err)
		}
		cfg.Broker.ConsumeTimeout = d
	}
	if v := getenv("BROKER_BACKOFF_MAX_ELAPSED"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BROKER_BACKOFF_MAX_ELAPSED: %w", err)
		}
		cfg.Broker.BackoffMaxElapsed = d
	}
	if v := getenv("BROKER_POSTGRES_TABLE"); v != "" {
		cfg.Broker.PostgresTable = v
	}
	if v := getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID: %w", err)
		}
		cfg.ChainID = id
	}
	if v := getenv("DAPP_ADDRESS"); v != "" {
		cfg.DAppAddress = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := getenv("METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	return nil
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("broker-endpoint", def.Broker.Endpoint, "broker URL (redis://, postgres://, memory://)")
	fs.Duration("broker-consume-timeout", def.Broker.ConsumeTimeout, "how long a claim read waits for a new claim")
	fs.Duration("broker-backoff-max-elapsed", def.Broker.BackoffMaxElapsed, "time budget for connecting to the broker")
	fs.String("broker-postgres-table", def.Broker.PostgresTable, "table used by postgres endpoints")
	fs.Uint64("chain-id", 0, "chain id of the rollup")
	fs.String("dapp-address", "", "address of the rollup contract")
	fs.String("log-level", def.Log.Level, "log level (trace, debug, info, warn, error)")
	fs.String("log-format", def.Log.Format, "log format (console, json)")
	fs.String("metrics-address", "", "address to serve prometheus metrics on")
}

// ApplyFlags overrides cfg with the flags that were set on the command line.
func (cfg *Config) ApplyFlags(fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"broker-endpoint":       &cfg.Broker.Endpoint,
		"broker-postgres-table": &cfg.Broker.PostgresTable,
		"dapp-address":          &cfg.DAppAddress,
		"log-level":             &cfg.Log.Level,
		"log-format":            &cfg.Log.Format,
		"metrics-address":       &cfg.Metrics.Address,
	}
	for name, field := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*field = v
	}

	durations := map[string]*time.Duration{
		"broker-consume-timeout":     &cfg.Broker.ConsumeTimeout,
		"broker-backoff-max-elapsed": &cfg.Broker.BackoffMaxElapsed,
	}
	for name, field := range durations {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*field = v
	}

	if fs.Changed("chain-id") {
		v, err := fs.GetUint64("chain-id")
		if err != nil {
			return err
		}
		cfg.ChainID = v
	}

	return nil
}

// Validate checks the fields the facade cannot work without.
func (cfg Config) Validate() error {
	if cfg.Broker.Endpoint == "" {
		return errors.New("broker.endpoint is required")
	}
	if cfg.Broker.BackoffMaxElapsed <= 0 {
		return errors.New("broker.backoff_max_elapsed must be positive")
	}
	if cfg.Broker.ConsumeTimeout < 0 {
		return errors.New("broker.consume_timeout must not be negative")
	}
	if !common.IsHexAddress(cfg.DAppAddress) {
		return fmt.Errorf("dapp_address %q is not a valid address", cfg.DAppAddress)
	}
	return nil
}

// Facade returns the facade configuration. Call Validate first.
func (cfg Config) Facade() facade.Config {
	return facade.Config{
		Broker: eventstore.Config{
			Endpoint:          cfg.Broker.Endpoint,
			ConsumeTimeout:    cfg.Broker.ConsumeTimeout,
			BackoffMaxElapsed: cfg.Broker.BackoffMaxElapsed,
		},
		PostgresTable: cfg.Broker.PostgresTable,
		ChainID:       cfg.ChainID,
		DAppAddress:   common.HexToAddress(cfg.DAppAddress),
	}
}
