package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"` // gin mode: debug, release or test
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		URL    string `yaml:"url"`    // PostgreSQL URL or SQLite DSN
	} `yaml:"database"`
	Reports struct {
		ExpiryHours          int `yaml:"expiry_hours"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds"` // 0 disables the background sweep
	} `yaml:"reports"`
	Chat struct {
		CooldownSeconds int `yaml:"cooldown_seconds"`
		MaxLength       int `yaml:"max_length"`
	} `yaml:"chat"`
	Admin struct {
		Password      string `yaml:"password"`
		PasswordHash  string `yaml:"password_hash"`
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"admin"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
		MapURL   string `yaml:"map_url"`
	} `yaml:"telegram"`
	Log struct {
		Development bool `yaml:"development"`
	} `yaml:"log"`
}

// LoadConfig reads configuration from the specified YAML file. Variables
// from a .env file in the working directory are loaded first so that
// ${VAR} references in secrets and URLs can be expanded.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.Database.URL = os.ExpandEnv(config.Database.URL)
	config.Admin.Password = os.ExpandEnv(config.Admin.Password)
	config.Admin.PasswordHash = os.ExpandEnv(config.Admin.PasswordHash)
	config.Admin.JWTSecret = os.ExpandEnv(config.Admin.JWTSecret)
	config.Telegram.BotToken = os.ExpandEnv(config.Telegram.BotToken)
	config.Telegram.MapURL = os.ExpandEnv(config.Telegram.MapURL)

	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Reports.ExpiryHours == 0 {
		c.Reports.ExpiryHours = 4
	}
	if c.Chat.CooldownSeconds == 0 {
		c.Chat.CooldownSeconds = 30
	}
	if c.Chat.MaxLength == 0 {
		c.Chat.MaxLength = 280
	}
	if c.Admin.TokenTTLHours == 0 {
		c.Admin.TokenTTLHours = 12
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Reports.ExpiryHours < 0 || c.Reports.SweepIntervalSeconds < 0 {
		return errors.New("reports.expiry_hours and reports.sweep_interval_seconds must not be negative")
	}
	if c.Chat.CooldownSeconds < 0 || c.Chat.MaxLength < 0 {
		return errors.New("chat.cooldown_seconds and chat.max_length must not be negative")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func (c *Config) ExpiryWindow() time.Duration {
	return time.Duration(c.Reports.ExpiryHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Reports.SweepIntervalSeconds) * time.Second
}

func (c *Config) ChatCooldown() time.Duration {
	return time.Duration(c.Chat.CooldownSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Admin.TokenTTLHours) * time.Hour
}
