package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/casegen/internal/platform/fhir"
)

type Config struct {
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	ManifestsDir  string `mapstructure:"MANIFESTS_DIR"`
	TestCasesDir  string `mapstructure:"TEST_CASES_DIR"`
	ReportFile    string `mapstructure:"REPORT_FILE"`
	ReferenceDate string `mapstructure:"REFERENCE_DATE"`
	RandomIDs     bool   `mapstructure:"RANDOM_IDS"`
}

// keys lists every configuration key; each is bound to the environment.
var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"MANIFESTS_DIR",
	"TEST_CASES_DIR",
	"REPORT_FILE",
	"REFERENCE_DATE",
	"RANDOM_IDS",
}

// New returns a viper instance with defaults set and environment variables
// bound. Commands bind their flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MANIFESTS_DIR", "manifests")
	v.SetDefault("TEST_CASES_DIR", "input/tests/MMR_Standard")
	v.SetDefault("REPORT_FILE", "docs/test-cases-summary.md")
	v.SetDefault("REFERENCE_DATE", "")
	v.SetDefault("RANDOM_IDS", false)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the optional .env file and unmarshals v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ReferenceDate = strings.TrimSpace(cfg.ReferenceDate)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	if c.ReferenceDate != "" {
		if _, err := time.Parse(fhir.DateLayout, c.ReferenceDate); err != nil {
			return fmt.Errorf("REFERENCE_DATE must be YYYY-MM-DD, got %q", c.ReferenceDate)
		}
	}
	if c.ManifestsDir == "" {
		return fmt.Errorf("MANIFESTS_DIR must not be empty")
	}
	if c.TestCasesDir == "" {
		return fmt.Errorf("TEST_CASES_DIR must not be empty")
	}
	if c.ReportFile == "" {
		return fmt.Errorf("REPORT_FILE must not be empty")
	}
	return nil
}

// ResolveReferenceDate returns the configured reference date, or today's
// UTC date taken from now when none is set.
func (c *Config) ResolveReferenceDate(now time.Time) (time.Time, error) {
	if c.ReferenceDate == "" {
		n := now.UTC()
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	ref, err := time.Parse(fhir.DateLayout, c.ReferenceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("reference date must be YYYY-MM-DD, got %q", c.ReferenceDate)
	}
	return ref, nil
}

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
