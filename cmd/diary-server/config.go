package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/diary-lens/fileutils"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

// Config holds the server configuration.
type Config struct {
	Addr             string        `mapstructure:"addr"`
	DBPath           string        `mapstructure:"db_path"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	ToneModel        string        `mapstructure:"tone_model"`
	Retries          int           `mapstructure:"retries"`
	StrictQuotes     bool          `mapstructure:"strict_quotes"`
	OrientationsPath string        `mapstructure:"orientations_path"`
	TonesPath        string        `mapstructure:"tones_path"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// LoadConfig reads configuration from an optional file, DIARY_* environment variables and defaults.
// An empty configPath falls back to ./diary-server.{toml,yaml,json} when present.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", filepath.Join("data", "diary.db"))
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("model", llm.DefaultModel)
	v.SetDefault("tone_model", "")
	v.SetDefault("retries", 3)
	v.SetDefault("strict_quotes", false)
	v.SetDefault("orientations_path", "")
	v.SetDefault("tones_path", "")
	v.SetDefault("request_timeout", "2m")
	v.SetDefault("shutdown_timeout", "10s")

	if configPath != "" {
		if !fileutils.FileExists(configPath) {
			return Config{}, fmt.Errorf("config file %s not found", configPath)
		}
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("diary-server")
	}

	// Environment variables: DIARY_ADDR, DIARY_DB_PATH, DIARY_API_KEY, etc.
	v.SetEnvPrefix("DIARY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ToneModel == "" {
		cfg.ToneModel = cfg.Model
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing addr")
	}
	if c.DBPath == "" {
		return errors.New("missing db_path")
	}
	if c.Model == "" {
		return errors.New("missing model")
	}
	if c.Retries < 0 {
		return errors.New("retries must be >= 0")
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	return nil
}
