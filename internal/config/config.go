// Package config loads flexiql settings from a YAML file, FLEXIQL_*
// environment variables and command line flags, in increasing order of
// precedence.
//
//	flexibee:
//	  url: https://demo.flexibee.eu:5434
//	  username: winstrom
//	  password: winstrom
//	  timeout: 30s
//	  rate_limit: 10
//	  burst: 5
//	shadow:
//	  driver: sqlite3
//	  dsn: flexiql.db
//	  concurrency: 4
//	query:
//	  page_size: 500
//	  row_errors: stop
//	models: ./models
//	company: demo
//	log:
//	  level: info
//	  format: text
//
// Environment variables replace dots with underscores:
// FLEXIQL_FLEXIBEE_PASSWORD, FLEXIQL_SHADOW_DSN.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "FLEXIQL"

// Row error policies accepted by query.row_errors.
const (
	RowErrorsStop     = "stop"
	RowErrorsContinue = "continue"
)

// Log formats accepted by log.format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete configuration.
type Config struct {
	FlexiBee FlexiBee `mapstructure:"flexibee"`
	Shadow   Shadow   `mapstructure:"shadow"`
	Query    Query    `mapstructure:"query"`

	// Models is the entity descriptor file or directory.
	Models string `mapstructure:"models"`

	// Company is the default company database name.
	Company string `mapstructure:"company"`

	Log Log `mapstructure:"log"`
}

// FlexiBee holds the remote server settings.
type FlexiBee struct {
	URL       string        `mapstructure:"url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// Shadow holds the shadow store settings.
type Shadow struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	Concurrency int    `mapstructure:"concurrency"`
}

// Query holds executor settings.
type Query struct {
	PageSize  int    `mapstructure:"page_size"`
	RowErrors string `mapstructure:"row_errors"`
}

// Log holds logger settings.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"flexibee.url":        "",
	"flexibee.username":   "",
	"flexibee.password":   "",
	"flexibee.timeout":    30 * time.Second,
	"flexibee.rate_limit": 0.0,
	"flexibee.burst":      1,
	"shadow.driver":       "sqlite3",
	"shadow.dsn":          "flexiql.db",
	"shadow.concurrency":  1,
	"query.page_size":     0,
	"query.row_errors":    RowErrorsStop,
	"models":              "models",
	"company":             "",
	"log.level":           zerolog.LevelInfoValue,
	"log.format":          LogFormatText,
}

// New returns a viper instance with defaults and environment binding.
// Every key has a default so that AutomaticEnv applies to Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file into v when file is set, then decodes and validates
// the configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be decoded wrongly but can still be
// meaningless.
func (c *Config) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !slices.Contains([]string{"sqlite3", "sqlite", "pgx", "postgres"}, c.Shadow.Driver) {
		addf("shadow.driver %q must be sqlite3 or pgx", c.Shadow.Driver)
	}
	if c.Shadow.Concurrency < 1 {
		addf("shadow.concurrency must be at least 1")
	}
	if c.FlexiBee.Timeout < 0 {
		addf("flexibee.timeout must not be negative")
	}
	if c.FlexiBee.RateLimit < 0 {
		addf("flexibee.rate_limit must not be negative")
	}
	if c.Query.PageSize < 0 {
		addf("query.page_size must not be negative")
	}
	if c.Query.RowErrors != RowErrorsStop && c.Query.RowErrors != RowErrorsContinue {
		addf("query.row_errors %q must be stop or continue", c.Query.RowErrors)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		addf("log.level %q is not a log level", c.Log.Level)
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatJSON {
		addf("log.format %q must be text or json", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
