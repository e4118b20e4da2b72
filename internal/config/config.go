package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/robfig/cron/v3"
	"github.com/titanous/json5"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// Config - глобальная конфигурация сервиса
type Config struct {
	Env      string          `json:"env"`       // "local", "prod"
	LogLevel string          `json:"log_level"` // debug, info, warn, error
	Database DatabaseConfig  `json:"database"`
	Fetch    FetchConfig     `json:"fetch"`
	Report   ReportConfig    `json:"report"`
	Schedule ScheduleConfig  `json:"schedule"`
	Sources  []domain.Source `json:"sources"`
	Telegram TelegramConfig  `json:"telegram"`
	HTTP     HTTPConfig      `json:"http"`
	Otlp     OtlpConfig      `json:"otlp"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // "sqlite" или "postgres"
	DSN    string `json:"dsn"`
}

type FetchConfig struct {
	PageSize int         `json:"page_size"`
	Timeout  Duration    `json:"timeout"`
	Retry    RetryConfig `json:"retry"`
}

type RetryConfig struct {
	BaseDelay   Duration `json:"base_delay"`
	MaxDelay    Duration `json:"max_delay"`
	MaxAttempts int      `json:"max_attempts"`
}

type ReportConfig struct {
	OutputDir string `json:"output_dir"`
}

type ScheduleConfig struct {
	Cron        string `json:"cron"`
	RunOnStart  bool   `json:"run_on_start"`
	MaxParallel int    `json:"max_parallel"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
	MaxLines int    `json:"max_lines"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type OtlpConfig struct {
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
}

// Duration accepts "30s" style strings in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json5.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json5.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", string(data))
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration: the two catalogs the service
// was written for, polled every 8 hours into a local SQLite file.
func Default() Config {
	return Config{
		Env:      "local",
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "sqlite", DSN: "catalog.db"},
		Fetch: FetchConfig{
			PageSize: 100,
			Timeout:  Duration(30 * time.Second),
			Retry: RetryConfig{
				BaseDelay:   Duration(4 * time.Second),
				MaxDelay:    Duration(60 * time.Second),
				MaxAttempts: 4,
			},
		},
		Report:   ReportConfig{OutputDir: "reports"},
		Schedule: ScheduleConfig{Cron: "0 */8 * * *", MaxParallel: 2},
		Sources: []domain.Source{
			{
				Name:               "UNIQLO",
				APIURL:             "https://www.uniqlo.com/jp/api/commerce/v5/ja/products",
				ProductURLTemplate: "https://www.uniqlo.com/jp/ja/products/{productId}/{priceGroup}",
			},
			{
				Name:               "GU",
				APIURL:             "https://www.gu-global.com/jp/api/commerce/v5/ja/products",
				ProductURLTemplate: "https://www.gu-global.com/jp/ja/products/{productId}/{priceGroup}",
			},
		},
		Telegram: TelegramConfig{MaxLines: 20},
		HTTP:     HTTPConfig{Addr: ":8080"},
	}
}

// Load reads `path` (JSON5), merges `<name>.local.<ext>` on top of it and
// finally applies environment overrides. A missing file is not an error,
// defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fromFile, err := readMerged(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

func readMerged(name string) (Config, error) {
	var out Config
	found := false

	base, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(base) > 0 {
		if err := json5.Unmarshal(base, &out); err != nil {
			return out, err
		}
		found = true
	}

	prefix, ext := splitExt(name)
	localPath := fmt.Sprintf("%s.local.%s", prefix, ext)
	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(local) > 0 {
		var override Config
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, err
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localPath)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("REPORT_DIR"); v != "" {
		cfg.Report.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("fetch.page_size must be positive, got %d", c.Fetch.PageSize))
	}
	if c.Fetch.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("fetch.retry.max_attempts must be positive, got %d", c.Fetch.Retry.MaxAttempts))
	}
	if c.Fetch.Retry.MaxDelay < c.Fetch.Retry.BaseDelay {
		errs = append(errs, errors.New("fetch.retry.max_delay must not be below base_delay"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err))
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" || s.APIURL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name and api_url are required", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// Source finds a configured source by name (case-insensitive).
func (c *Config) Source(name string) (domain.Source, bool) {
	for _, s := range c.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return domain.Source{}, false
}

func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
