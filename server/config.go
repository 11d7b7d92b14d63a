package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"orrery.space/shared/celestial"
)

// ServerConfig holds listener and routing settings.
type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	HTTPSAddr      string        `mapstructure:"https_addr"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	Domain         string        `mapstructure:"domain"`
	CertDir        string        `mapstructure:"cert_dir"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	RateLimit      int           `mapstructure:"rate_limit"`      // requests per minute per IP
	ChatRateLimit  int           `mapstructure:"chat_rate_limit"` // chat requests per minute per IP
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For
	// header is believed. Empty means the peer address is always used.
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

// ChatConfig holds the chat relay settings.
type ChatConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	HistoryLimit int           `mapstructure:"history_limit"`
	DBPath       string        `mapstructure:"db_path"`
	AllowedHosts []string      `mapstructure:"allowed_hosts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// AdminToken guards changing settings and clearing history. Empty makes
	// both read-only over HTTP.
	AdminToken   string        `mapstructure:"admin_token"`
}

// Config holds all runtime configuration. Values come from .orrery.yaml,
// ORRERY_* env vars, and CLI flags.
type Config struct {
	PlanetsFile          string       `mapstructure:"planets_file"`
	Timezone             string       `mapstructure:"timezone"`
	ConjunctionThreshold float64      `mapstructure:"conjunction_threshold"`
	TrigramOffset        float64      `mapstructure:"trigram_offset"`
	ZodiacReferenceYear  int          `mapstructure:"zodiac_reference_year"`
	Server               ServerConfig `mapstructure:"server"`
	Chat                 ChatConfig   `mapstructure:"chat"`
}

const minStreamInterval = 50 * time.Millisecond

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("planets_file", "")
	viper.SetDefault("timezone", "UTC")
	viper.SetDefault("conjunction_threshold", celestial.DefaultConjunctionThreshold)
	viper.SetDefault("trigram_offset", celestial.DefaultTrigramOffset)
	viper.SetDefault("zodiac_reference_year", celestial.DefaultZodiacReferenceYear)

	viper.SetDefault("server.http_addr", ":8080")
	viper.SetDefault("server.https_addr", "")
	viper.SetDefault("server.metrics_addr", ":9090")
	viper.SetDefault("server.domain", celestial.DefaultDomain)
	viper.SetDefault("server.cert_dir", "certs")
	viper.SetDefault("server.stream_interval", "1s")
	viper.SetDefault("server.rate_limit", 600)
	viper.SetDefault("server.chat_rate_limit", 30)
	viper.SetDefault("server.trusted_proxies", []string{})

	viper.SetDefault("chat.base_url", "https://api.deepseek.com")
	viper.SetDefault("chat.api_key", "")
	viper.SetDefault("chat.model", "deepseek-chat")
	viper.SetDefault("chat.history_limit", 50)
	viper.SetDefault("chat.db_path", "orrery-chat.db")
	viper.SetDefault("chat.allowed_hosts", []string{})
	viper.SetDefault("chat.timeout", "2m")
	viper.SetDefault("chat.admin_token", "")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Server.StreamInterval < minStreamInterval:
		return fmt.Errorf("config: server.stream_interval %v is below %v", c.Server.StreamInterval, minStreamInterval)
	case c.Server.RateLimit <= 0:
		return fmt.Errorf("config: server.rate_limit must be positive, got %d", c.Server.RateLimit)
	case c.Server.ChatRateLimit <= 0:
		return fmt.Errorf("config: server.chat_rate_limit must be positive, got %d", c.Server.ChatRateLimit)
	case c.Chat.HistoryLimit <= 0:
		return fmt.Errorf("config: chat.history_limit must be positive, got %d", c.Chat.HistoryLimit)
	case strings.TrimSpace(c.Server.Domain) == "":
		return fmt.Errorf("config: server.domain is empty")
	}
	if _, err := parseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("config: server.trusted_proxies: %w", err)
	}
	return nil
}

// NewCalculator builds the calculator described by the config: the planets
// file when one is set, otherwise the built-in table.
func (c Config) NewCalculator() (*celestial.Calculator, error) {
	table := celestial.MustDefaultTable()
	if c.PlanetsFile != "" {
		t, err := celestial.LoadTable(c.PlanetsFile)
		if err != nil {
			return nil, err
		}
		table = t
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}

	return celestial.New(table, celestial.Options{
		ConjunctionThreshold: c.ConjunctionThreshold,
		TrigramOffset:        c.TrigramOffset,
		ZodiacReferenceYear:  c.ZodiacReferenceYear,
		Location:             loc,
	})
}
