// Package config loads settings from defaults, an optional YAML file,
// the environment and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/vitebski/booking-admin/internal/form"
	"github.com/vitebski/booking-admin/internal/validator"
)

// EnvPrefix prefixes every environment variable read as a setting
const EnvPrefix = "ADMIN_"

// Defaults
const (
	DefaultTable            = "bookings"
	DefaultIdentifierColumn = "reference_number"
	DefaultOrderColumn      = "serial_number"
)

// Flags that select files rather than settings
var nonSettingFlags = map[string]bool{"config": true, "env-file": true}

// Config holds every setting
type Config struct {
	DatabaseURL      string                `koanf:"database_url"`
	Table            string                `koanf:"table"`
	IdentifierColumn string                `koanf:"identifier_column"`
	OrderColumn      string                `koanf:"order_column"`
	OrderDesc        bool                  `koanf:"order_desc"`
	PhoneColumns     []string              `koanf:"phone_columns"`
	DateOrder        []validator.OrderRule `koanf:"date_order"`
	TimeOrder        []validator.OrderRule `koanf:"time_order"`
	ConfirmPhrase    string                `koanf:"confirm_phrase"`
	LogLevel         string                `koanf:"log_level"`

	// ConfigFile is the YAML file that was read, if any
	ConfigFile string `koanf:"-"`
}

// findConfigFile returns the explicit path or the first default file present
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"booking-admin.yaml", "booking-admin.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads the configuration.
// Precedence (highest to lowest): flags > ADMIN_* env vars > DATABASE_URL > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"table":             DefaultTable,
		"identifier_column": DefaultIdentifierColumn,
		"order_column":      DefaultOrderColumn,
		"order_desc":        false,
		"confirm_phrase":    form.DefaultConfirmPhrase,
		"date_order": []interface{}{
			map[string]interface{}{"start": "start_date", "end": "end_date"},
		},
		"time_order": []interface{}{
			map[string]interface{}{"start": "start_time", "end": "end_time"},
		},
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFile := findConfigFile(cfgFile)
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. The conventional DATABASE_URL
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		if err := k.Load(confmap.Provider(map[string]interface{}{"database_url": databaseURL}, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load DATABASE_URL: %w", err)
		}
	}

	// 4. ADMIN_ prefixed environment variables: ADMIN_ORDER_COLUMN -> order_column.
	// List values are comma separated.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "phone_columns" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Flags, only those set explicitly
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || nonSettingFlags[f.Name] {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = configFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable fallback
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Table) == "" {
		problems = append(problems, "table must not be empty")
	}
	if strings.TrimSpace(c.IdentifierColumn) == "" {
		problems = append(problems, "identifier_column must not be empty")
	}
	if c.ConfirmPhrase == "" {
		problems = append(problems, "confirm_phrase must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Rules returns the validator settings
func (c *Config) Rules() validator.Rules {
	return validator.Rules{
		IdentifierColumn: c.IdentifierColumn,
		PhoneColumns:     c.PhoneColumns,
		DateOrder:        c.DateOrder,
		TimeOrder:        c.TimeOrder,
	}
}

// Form returns the form engine settings
func (c *Config) Form() form.Config {
	return form.Config{
		Table:            c.Table,
		IdentifierColumn: c.IdentifierColumn,
		OrderColumn:      c.OrderColumn,
		OrderDesc:        c.OrderDesc,
		ConfirmPhrase:    c.ConfirmPhrase,
	}
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
