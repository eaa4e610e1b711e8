// Package config loads daemon configuration from a JSON file at
// $XDG_CONFIG_HOME/mentora/config.json with MENTORA_* environment
// variables overriding file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Ollama     OllamaConfig     `json:"ollama"`
	Generation GenerationConfig `json:"generation"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	Storage    StorageConfig    `json:"storage"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Session    SessionConfig    `json:"session"`
	Log        LogConfig        `json:"log"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	APIToken string `json:"api_token"`
}

type OllamaConfig struct {
	BaseURL    string `json:"base_url"`
	EmbedModel string `json:"embed_model"`
}

type GenerationConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

// KnowledgeConfig points at the generic knowledge service consulted by
// the retrieval fallback tier. An empty BaseURL disables the tier.
type KnowledgeConfig struct {
	BaseURL string `json:"base_url"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

type RetrievalConfig struct {
	MatchThreshold float64 `json:"match_threshold"`
	MatchCount     int     `json:"match_count"`
}

// SessionConfig carries the commercial parameters of a tutoring session.
// FlatFeeMinor is charged per completed or escalated session in the
// platform's minor currency unit, independent of duration.
type SessionConfig struct {
	FlatFeeMinor int `json:"flat_fee_minor"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Generation: GenerationConfig{
			Model: "openai/gpt-4o-mini",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			MatchThreshold: 0.3,
			MatchCount:     5,
		},
		Session: SessionConfig{
			FlatFeeMinor: 2500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the default config file path and applies
// environment overrides.
func Load() (Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads configuration from the given file path (which may not
// exist) and applies environment overrides.
func LoadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file: defaults plus env is fine.
	case err != nil:
		return Config{}, fmt.Errorf("reading config file: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Generation.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: generation API key; set MENTORA_GENERATION_API_KEY or generation.api_key in %s", path)
	}

	return cfg, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/mentora/config.json,
// falling back to ~/.config.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.json"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mentora", "config.json")
}

func defaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "mentora")
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setInt("MENTORA_PORT", &cfg.Server.Port)
	setString("MENTORA_API_TOKEN", &cfg.Server.APIToken)
	setString("MENTORA_OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	setString("MENTORA_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	setString("MENTORA_GENERATION_API_KEY", &cfg.Generation.APIKey)
	setString("MENTORA_GENERATION_MODEL", &cfg.Generation.Model)
	setString("MENTORA_GENERATION_BASE_URL", &cfg.Generation.BaseURL)
	setString("MENTORA_KNOWLEDGE_BASE_URL", &cfg.Knowledge.BaseURL)
	setString("MENTORA_DATA_DIR", &cfg.Storage.DataDir)
	setFloat("MENTORA_MATCH_THRESHOLD", &cfg.Retrieval.MatchThreshold)
	setInt("MENTORA_MATCH_COUNT", &cfg.Retrieval.MatchCount)
	setInt("MENTORA_FLAT_FEE_MINOR", &cfg.Session.FlatFeeMinor)
	setString("MENTORA_LOG_LEVEL", &cfg.Log.Level)
}
