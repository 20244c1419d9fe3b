// Package config loads runtime settings from .env, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string

	TelegramToken  string
	TelegramChatID string
	TelegramAPI    string

	MinScore       int
	DigestSchedule string

	SMTP SMTPConfig

	PushgatewayURL string

	ChromePath   string
	RenderSettle time.Duration
	HTTPTimeout  time.Duration
	ArchiveDir   string

	Port              string
	JWTSecret         string
	AdminPasswordHash string

	SourcesFile string
	ProfileFile string

	LogLevel  string
	LogFormat string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// TelegramEnabled reports whether both token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func (c *Config) EmailEnabled() bool {
	return c.SMTP.Host != "" && len(c.SMTP.To) > 0
}

// env maps config keys to the environment variables that override them.
var env = map[string]string{
	"database.url":             "DATABASE_URL",
	"telegram.token":           "TELEGRAM_TOKEN",
	"telegram.chat_id":         "TELEGRAM_CHAT_ID",
	"telegram.api_base":        "TELEGRAM_API_BASE",
	"notify.min_score":         "NOTIFY_MIN_SCORE",
	"digest.schedule":          "DIGEST_SCHEDULE",
	"smtp.host":                "SMTP_HOST",
	"smtp.port":                "SMTP_PORT",
	"smtp.username":            "SMTP_USERNAME",
	"smtp.password":            "SMTP_PASSWORD",
	"smtp.from":                "SMTP_FROM",
	"smtp.to":                  "SMTP_TO",
	"metrics.pushgateway":      "PUSHGATEWAY_URL",
	"render.chrome_path":       "CHROME_PATH",
	"render.settle":            "RENDER_SETTLE",
	"http.timeout":             "HTTP_TIMEOUT",
	"archive.dir":              "ARCHIVE_DIR",
	"server.port":              "PORT",
	"auth.jwt_secret":          "JWT_SECRET",
	"auth.admin_password_hash": "ADMIN_PASSWORD_HASH",
	"sources.file":             "SOURCES_FILE",
	"profile.file":             "PROFILE_FILE",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "sqlite://data/sentinel.db")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.min_score", 40)
	v.SetDefault("digest.schedule", "0 8 1,16 * *")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("render.settle", "5s")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env (if present), then the YAML file at path (if any), then
// the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("database.url"),
		TelegramToken:     v.GetString("telegram.token"),
		TelegramChatID:    v.GetString("telegram.chat_id"),
		TelegramAPI:       v.GetString("telegram.api_base"),
		MinScore:          v.GetInt("notify.min_score"),
		DigestSchedule:    v.GetString("digest.schedule"),
		PushgatewayURL:    v.GetString("metrics.pushgateway"),
		ChromePath:        v.GetString("render.chrome_path"),
		RenderSettle:      v.GetDuration("render.settle"),
		HTTPTimeout:       v.GetDuration("http.timeout"),
		ArchiveDir:        v.GetString("archive.dir"),
		Port:              v.GetString("server.port"),
		JWTSecret:         v.GetString("auth.jwt_secret"),
		AdminPasswordHash: v.GetString("auth.admin_password_hash"),
		SourcesFile:       v.GetString("sources.file"),
		ProfileFile:       v.GetString("profile.file"),
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
			To:       splitList(v.GetStringSlice("smtp.to")),
		},
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late in a run.
func (c *Config) Validate() error {
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("notify min score must be within 0..100, got %d", c.MinScore)
	}
	if _, err := cron.ParseStandard(c.DigestSchedule); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", c.DigestSchedule, err)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database url is empty")
	}
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"),
		strings.HasPrefix(c.DatabaseURL, "postgresql://"),
		strings.HasPrefix(c.DatabaseURL, "sqlite://"),
		strings.HasPrefix(c.DatabaseURL, "file:"),
		!strings.Contains(c.DatabaseURL, "://"):
	default:
		return fmt.Errorf("unsupported database url scheme: %s", c.DatabaseURL)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
