package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/config"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/pflag"
)

const envPrefix = "MAILFLOW_"

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

// settings are process level knobs. Service settings are read separately by
// core.EnvConfigProvider from the same MAILFLOW_ prefix.
type settings struct {
	DBDriver        string        `koanf:"db_driver"`
	DBDSN           string        `koanf:"db_dsn"`
	DBDebug         bool          `koanf:"db_debug"`
	HTTPAddr        string        `koanf:"http_addr"`
	LogFormat       string        `koanf:"log_format"`
	LogLevel        string        `koanf:"log_level"`
	ConfigCacheTTL  time.Duration `koanf:"config_cache_ttl"`
	AppKey          string        `koanf:"app_key"`
	PreviousAppKeys string        `koanf:"app_key_previous"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func defaultSettings() settings {
	return settings{
		DBDriver:        driverSQLite,
		DBDSN:           "file:mailflow.db?cache=shared&_foreign_keys=on",
		HTTPAddr:        ":8080",
		LogFormat:       "json",
		LogLevel:        "info",
		ConfigCacheTTL:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// loadSettings layers MAILFLOW_* env vars and then the changed command line
// flags over the defaults. Flag names use dashes where keys use underscores.
func loadSettings(ctx context.Context, flags *pflag.FlagSet) (settings, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	container := config.New(defaultSettings()).
		WithLogger(glog.Nop()).
		WithProvider(
			config.EnvProvider[settings](envPrefix, "__"),
			config.DefaultValuesProvider[settings](changedFlags(flags), int(config.PriorityFlags)),
		)
	if err := container.Load(ctx); err != nil {
		return settings{}, err
	}
	return container.Raw(), nil
}

func changedFlags(flags *pflag.FlagSet) map[string]any {
	out := map[string]any{}
	if flags == nil {
		return out
	}
	flags.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := settingsKeys[key]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

var settingsKeys = map[string]struct{}{
	"db_driver":  {},
	"db_dsn":     {},
	"log_format": {},
	"log_level":  {},
}

func (s settings) Validate() error {
	switch s.DBDriver {
	case driverSQLite, driverPostgres:
	default:
		return fmt.Errorf("mailflow: unsupported database driver %q", s.DBDriver)
	}
	if strings.TrimSpace(s.DBDSN) == "" {
		return fmt.Errorf("mailflow: database dsn is required")
	}
	if s.ConfigCacheTTL < 0 {
		return fmt.Errorf("mailflow: config cache ttl must be >= 0")
	}
	return nil
}

// persistenceConfig satisfies the go-persistence-bun config contract.
type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string { return "go-mailflow" }
