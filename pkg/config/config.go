// Package config loads invoicegraph settings from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigName is the file searched for when no path is given.
const DefaultConfigName = "invoicegraph"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds every setting of a reconciliation run. Keys match the
// environment variable names, lower-cased.
type Config struct {
	SupervisorModel   string `mapstructure:"supervisor_model"`
	SQLModel          string `mapstructure:"sql_model"`
	FinanceClerkModel string `mapstructure:"finance_clerk_model"`
	VisionModel       string `mapstructure:"vision_model"`
	// Model is used for any role whose model is unset.
	Model string `mapstructure:"model"`

	MaxRetries     int `mapstructure:"max_retries"`
	MaxEntries     int `mapstructure:"max_entries"`
	BatchSize      int `mapstructure:"batch_size"`
	MaxSteps       int `mapstructure:"max_steps"`
	MaxCorrections int `mapstructure:"max_corrections"`

	BaseURL       string `mapstructure:"base_url"`
	VisionBaseURL string `mapstructure:"vision_base_url"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`

	// DataDir holds the databases when their paths are not set.
	DataDir        string `mapstructure:"data_dir"`
	EmailDBPath    string `mapstructure:"email_db_path"`
	LedgerDriver   string `mapstructure:"ledger_driver"`
	LedgerDSN      string `mapstructure:"ledger_dsn"`
	AttachmentsDir string `mapstructure:"attachments_dir"`
	PromptsFile    string `mapstructure:"prompts_file"`
	ResetDBState   bool   `mapstructure:"reset_db_state"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Loader reads configuration through viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a loader that searches the working directory for
// invoicegraph.yaml.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// WithConfigFile makes the loader read path instead of searching. A
// missing explicit file is an error.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(DefaultConfigName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	// Every key needs a default so that AutomaticEnv sees it on Unmarshal.
	for _, key := range []string{
		"supervisor_model", "sql_model", "finance_clerk_model", "vision_model",
		"base_url", "vision_base_url", "openai_api_key", "gemini_api_key",
		"email_db_path", "ledger_dsn", "prompts_file",
	} {
		l.v.SetDefault(key, "")
	}
	l.v.SetDefault("model", "llama3.1")

	l.v.SetDefault("max_retries", 3)
	l.v.SetDefault("max_entries", 0)
	l.v.SetDefault("batch_size", 10)
	l.v.SetDefault("max_steps", 150)
	l.v.SetDefault("max_corrections", 5)

	l.v.SetDefault("data_dir", filepath.Join("data", "db"))
	l.v.SetDefault("ledger_driver", "sqlite")
	l.v.SetDefault("attachments_dir", filepath.Join("data", "attachments"))
	l.v.SetDefault("reset_db_state", false)

	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("log_format", LogFormatText)
}

func (c *Config) applyFallbacks() {
	for _, m := range []*string{&c.SupervisorModel, &c.SQLModel, &c.FinanceClerkModel, &c.VisionModel} {
		if *m == "" {
			*m = c.Model
		}
	}
	if c.EmailDBPath == "" {
		c.EmailDBPath = filepath.Join(c.RunDir(), "emails.db")
	}
	if c.LedgerDSN == "" && c.LedgerDriver == "sqlite" {
		c.LedgerDSN = filepath.Join(c.RunDir(), "transactions.db")
	}
}

// RunDir is the per-model-pair directory under DataDir, so runs against
// different models keep separate databases.
func (c *Config) RunDir() string {
	name := strings.ReplaceAll(c.VisionModel, ":", "_") + "-" + strings.ReplaceAll(c.Model, ":", "_")
	return filepath.Join(c.DataDir, name)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" && (c.SupervisorModel == "" || c.SQLModel == "" || c.FinanceClerkModel == "" || c.VisionModel == "") {
		errs = append(errs, errors.New("every model role needs a model: set MODEL or the per-role variables"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("max_entries must be >= 0, got %d", c.MaxEntries))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be > 0, got %d", c.BatchSize))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps must be > 0, got %d", c.MaxSteps))
	}
	if c.MaxCorrections < 0 {
		errs = append(errs, fmt.Errorf("max_corrections must be >= 0, got %d", c.MaxCorrections))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat))
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name such as "debug" or "WARN" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}
