package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/auxreport/internal/batch"
	"github.com/tinytelemetry/auxreport/internal/logging"
	"github.com/tinytelemetry/auxreport/internal/model"
	"github.com/tinytelemetry/auxreport/internal/render"
	"github.com/tinytelemetry/auxreport/internal/report"
	"github.com/tinytelemetry/auxreport/internal/trend"
)

const (
	defaultAPIAddr        = "127.0.0.1:3000"
	defaultRequestTimeout = 60 * time.Second
	defaultRunTimeout     = 30 * time.Minute
	defaultFormat         = "text"
	defaultTopN           = 10
	defaultChartWidth     = 72
)

// defaultMetrics are requested when neither the config nor node discovery
// name any.
var defaultMetrics = []string{trend.DefaultOutMetric, trend.DefaultInMetric}

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Nodes          []string      `mapstructure:"nodes"`
	Interfaces     []string      `mapstructure:"interfaces"`
	Metrics        []string      `mapstructure:"metrics"`
	Concurrency    int           `mapstructure:"concurrency"`
	FailurePolicy  string        `mapstructure:"failure-policy"`
	Timezone       string        `mapstructure:"timezone"`
	Step           time.Duration `mapstructure:"step"`
	BatchWidth     time.Duration `mapstructure:"batch-width"`
	Lookback       time.Duration `mapstructure:"lookback"`
	StrictRange    bool          `mapstructure:"strict-range"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	RunTimeout     time.Duration `mapstructure:"run-timeout"`
	MaxInterfaces  int           `mapstructure:"max-interfaces"`
	APIAddr        string        `mapstructure:"api-addr"`
	LogPath        string        `mapstructure:"log-path"`
	LogLevel       string        `mapstructure:"log-level"`
	Format         string        `mapstructure:"format"`
	TopN           int           `mapstructure:"top"`
	Bits           bool          `mapstructure:"bits"`
	ConfigPath     string        `mapstructure:"-"` // not from config file

	policy   report.FailurePolicy
	location *time.Location
}

// loadConfig layers flags over AUXREPORT_* env over the config file over
// defaults. bind registers command flags with the viper instance.
func loadConfig(configPath string, bind func(v *viper.Viper) error) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("AUXREPORT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("nodes", []string{})
	v.SetDefault("interfaces", []string{})
	v.SetDefault("metrics", []string{})
	v.SetDefault("concurrency", model.DefaultConcurrency)
	v.SetDefault("failure-policy", string(report.FailFast))
	v.SetDefault("timezone", "")
	v.SetDefault("step", model.DefaultStep)
	v.SetDefault("batch-width", model.DefaultBatchWidth)
	v.SetDefault("lookback", model.DefaultLookback)
	v.SetDefault("strict-range", false)
	v.SetDefault("request-timeout", defaultRequestTimeout)
	v.SetDefault("run-timeout", defaultRunTimeout)
	v.SetDefault("max-interfaces", model.DefaultMaxInterfaces)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("log-path", logging.DefaultPath())
	v.SetDefault("log-level", "info")
	v.SetDefault("format", defaultFormat)
	v.SetDefault("top", defaultTopN)
	v.SetDefault("bits", false)

	if bind != nil {
		if err := bind(v); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "auxreport", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *appConfig) validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	if c.MaxInterfaces <= 0 {
		return fmt.Errorf("invalid max-interfaces: %d", c.MaxInterfaces)
	}
	if c.BatchWidth <= 0 {
		return fmt.Errorf("invalid batch-width: %s", c.BatchWidth)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("invalid lookback: %s", c.Lookback)
	}
	if c.Step <= 0 {
		return fmt.Errorf("invalid step: %s", c.Step)
	}
	if c.TopN < 0 {
		return fmt.Errorf("invalid top: %d", c.TopN)
	}

	policy, err := report.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return err
	}
	c.policy = policy

	if _, err := render.New(c.Format, render.Options{}); err != nil {
		return err
	}

	c.location = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		c.location = loc
	}

	// Expand ~ in log-path
	if strings.HasPrefix(c.LogPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.LogPath = filepath.Join(home, c.LogPath[2:])
		}
	}
	return nil
}

// metricsOr returns the configured metrics, else discovered, else the
// octet counter defaults.
func (c appConfig) metricsOr(discovered []string) []string {
	switch {
	case len(c.Metrics) > 0:
		return c.Metrics
	case len(discovered) > 0:
		return discovered
	default:
		return defaultMetrics
	}
}

func (c appConfig) runnerConfig() report.Config {
	return report.Config{
		Concurrency:   c.Concurrency,
		Policy:        c.policy,
		MaxInterfaces: c.MaxInterfaces,
		Location:      c.location,
		Batch: batch.Config{
			Width:       c.BatchWidth,
			Lookback:    c.Lookback,
			StrictRange: c.StrictRange,
		},
	}
}

func (c appConfig) renderOptions(title string) render.Options {
	return render.Options{
		Title:      title,
		TopN:       c.TopN,
		Bits:       c.Bits,
		Location:   c.location,
		ChartWidth: defaultChartWidth,
	}
}

func (c appConfig) loggingConfig() logging.Config {
	return logging.Config{
		Path:       c.LogPath,
		Level:      c.LogLevel,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}
