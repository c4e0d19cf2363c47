// Package config handles loading and validation of procus.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/Procus/internal/utils"
)

// Duration lets YAML carry Go duration strings such as "30m" or "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the stdlib representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Gateway configures the outbound SMS gateway client.
type Gateway struct {
	URL         string   `yaml:"url"`
	Token       string   `yaml:"token"`
	Timeout     Duration `yaml:"timeout"`
	MaxFailures uint32   `yaml:"maxFailures"` // consecutive failures before the breaker opens
}

// Config is the full runtime configuration shared by the server and starter
// binaries. Secrets (webhook token, gateway token) may be supplied via
// environment instead of the file.
type Config struct {
	ListenAddr   string   `yaml:"listenAddr"`
	LogMode      string   `yaml:"logMode"`
	SQLitePath   string   `yaml:"sqlitePath"`
	WebhookToken string   `yaml:"webhookToken"`
	ScanInterval Duration `yaml:"scanInterval"`

	// Inclusive bounds for a valid answer. Global across instruments for
	// now; per-item bounds would move into the items table.
	AnswerMin int `yaml:"answerMin"`
	AnswerMax int `yaml:"answerMax"`

	// Whether the Restart command leaves the recipient's iteration open.
	// Observed deployments disagree on this, so it is explicit.
	RestartReopensIteration bool `yaml:"restartReopensIteration"`

	// Actor tag written to updated_by columns, e.g. "server" or "starter".
	Actor string `yaml:"actor"`

	Gateway Gateway `yaml:"gateway"`
}

// Load reads and parses the YAML config at path, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Config{RestartReopensIteration: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = utils.SafeEnv("PROCUS_ADDR", ":8080")
	}
	if cfg.LogMode == "" {
		cfg.LogMode = utils.SafeEnv("PROCUS_LOG_MODE", "dev")
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = utils.SafeEnv("PROCUS_DB_PATH", "procus.db")
	}
	if cfg.WebhookToken == "" {
		cfg.WebhookToken = os.Getenv("PROCUS_WEBHOOK_TOKEN")
	}
	if cfg.Gateway.Token == "" {
		cfg.Gateway.Token = os.Getenv("PROCUS_GATEWAY_TOKEN")
	}
	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = utils.SafeEnv("PROCUS_GATEWAY_URL", "https://api.cpsms.dk/v2/send")
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = Duration(10 * time.Second)
	}
	if cfg.Gateway.MaxFailures == 0 {
		cfg.Gateway.MaxFailures = 5
	}
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = Duration(30 * time.Minute)
	}
	if cfg.AnswerMin == 0 && cfg.AnswerMax == 0 {
		cfg.AnswerMin, cfg.AnswerMax = 1, 5
	}
}

func validate(cfg *Config) error {
	if cfg.WebhookToken == "" {
		return fmt.Errorf("webhookToken is required (or PROCUS_WEBHOOK_TOKEN)")
	}
	if cfg.AnswerMin > cfg.AnswerMax {
		return fmt.Errorf("answerMin %d exceeds answerMax %d", cfg.AnswerMin, cfg.AnswerMax)
	}
	if cfg.ScanInterval.Std() < time.Minute {
		return fmt.Errorf("scanInterval %s is below the 1m floor", cfg.ScanInterval.Std())
	}
	return nil
}
