package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	PGDSN             string
	LogLevel          string
	PollInterval      time.Duration
	FetchTimeout      time.Duration
	CycleTimeout      time.Duration
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ProbeInterval     time.Duration
	BatchSize         uint64
	MaxRetries        int
	RetryBackoff      time.Duration
	Concurrency       int
	MetricsAddr       string
	Contracts         []ContractConfig
}

// ContractConfig is one entry of the contracts list.
type ContractConfig struct {
	Table         string        `mapstructure:"table"`
	Address       string        `mapstructure:"address"`
	ABI           string        `mapstructure:"abi"`
	StartBlock    uint64        `mapstructure:"start-block"`
	Interval      time.Duration `mapstructure:"interval"`
	FrozenEvent   string        `mapstructure:"frozen-event"`
	UnfrozenEvent string        `mapstructure:"unfrozen-event"`
	AddressArg    string        `mapstructure:"address-arg"`
	AmountArg     string        `mapstructure:"amount-arg"`
	Decimals      *uint8        `mapstructure:"decimals"`
	EventsEnabled *bool         `mapstructure:"events-enabled"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("poll-interval", 60*time.Second)
	v.SetDefault("fetch-timeout", 30*time.Second)
	v.SetDefault("cycle-timeout", time.Duration(0))
	v.SetDefault("reconnect-delay", 5*time.Second)
	v.SetDefault("reconnect-max-delay", time.Minute)
	v.SetDefault("probe-interval", 15*time.Second)
	v.SetDefault("batch-size", uint64(5000))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("concurrency", 1)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            strings.TrimSpace(v.GetString("rpc")),
		PGDSN:             strings.TrimSpace(v.GetString("pg-dsn")),
		LogLevel:          v.GetString("log-level"),
		PollInterval:      v.GetDuration("poll-interval"),
		FetchTimeout:      v.GetDuration("fetch-timeout"),
		CycleTimeout:      v.GetDuration("cycle-timeout"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		ReconnectMaxDelay: v.GetDuration("reconnect-max-delay"),
		ProbeInterval:     v.GetDuration("probe-interval"),
		BatchSize:         v.GetUint64("batch-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Concurrency:       v.GetInt("concurrency"),
		MetricsAddr:       v.GetString("metrics-addr"),
	}

	if err := v.UnmarshalKey("contracts", &cfg.Contracts); err != nil {
		return Config{}, fmt.Errorf("parse contracts: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll-interval must be positive")
	}
	if cfg.Concurrency < 1 {
		return Config{}, fmt.Errorf("concurrency must be at least 1")
	}
	return cfg, nil
}
