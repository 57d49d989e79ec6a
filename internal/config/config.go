package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port     string `yaml:"port"`
		Instance string `yaml:"instance"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		KVTTL    string `yaml:"kv_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Duration        string `yaml:"duration"`
		Warning         string `yaml:"warning"`
		Tick            string `yaml:"tick"`
		RequireIdentity bool   `yaml:"require_identity"`
		RecentLimit     int    `yaml:"recent_limit"`
		GlobalLimit     int    `yaml:"global_limit"`
		LeaderboardTTL  string `yaml:"leaderboard_ttl"`
	} `yaml:"quiz"`
	Gemini struct {
		APIKey        string `yaml:"api_key"`
		BaseURL       string `yaml:"base_url"`
		Model         string `yaml:"model"`
		Timeout       string `yaml:"timeout"`
		Retries       int    `yaml:"retries"`
		QuestionCount int    `yaml:"question_count"`
	} `yaml:"gemini"`
}

// Load reads YAML config from path, after loading .env into the environment.
// A missing file is not an error; secrets can then come from the environment alone.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
