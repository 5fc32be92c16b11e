package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Defaults struct {
		Model       string  `toml:"model" validate:"required"`
		Temperature float64 `toml:"temperature" validate:"gte=0,lte=2"`
		MaxRetries  int     `toml:"max_retries" validate:"gte=0,lte=10"`
		OutputDir   string  `toml:"output_dir" validate:"required"`
	} `toml:"defaults"`
	Providers struct {
		Anthropic struct {
			DefaultModel string `toml:"default_model"`
		} `toml:"anthropic"`
		OpenAI struct {
			DefaultModel string `toml:"default_model"`
			BaseURL      string `toml:"base_url" validate:"omitempty,url"`
		} `toml:"openai"`
		Ollama struct {
			Host         string `toml:"host" validate:"omitempty,url"`
			DefaultModel string `toml:"default_model"`
		} `toml:"ollama"`
	} `toml:"providers"`
	Limits struct {
		RequestsPerMinute int `toml:"requests_per_minute" validate:"gte=1"`
		MaxToolLoops      int `toml:"max_tool_loops" validate:"gte=1,lte=64"`
		MaxTokens         int `toml:"max_tokens" validate:"gte=256"`
	} `toml:"limits"`
	Timeouts Timeouts `toml:"timeouts"`
	Backoff  struct {
		BaseMillis int     `toml:"base_millis" validate:"gte=1"`
		MaxMillis  int     `toml:"max_millis" validate:"gte=1"`
		Multiplier float64 `toml:"multiplier" validate:"gte=1"`
	} `toml:"backoff"`
	Knowledge struct {
		Enabled      bool   `toml:"enabled"`
		Embedder     string `toml:"embedder"`
		Dir          string `toml:"dir"`
		ChunkSize    int    `toml:"chunk_size" validate:"gte=32"`
		ChunkOverlap int    `toml:"chunk_overlap" validate:"gte=0"`
	} `toml:"knowledge"`
	History struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"history"`
}

// Timeouts holds external process bounds in seconds. Tool runners convert
// through the accessor methods.
type Timeouts struct {
	ModelSeconds       int `toml:"model_seconds" validate:"gte=5"`
	SyntaxSeconds      int `toml:"syntax_seconds" validate:"gte=1"`
	ComposeSeconds     int `toml:"compose_seconds" validate:"gte=10"`
	ActivateSeconds    int `toml:"activate_seconds" validate:"gte=5"`
	PlaygroundSeconds  int `toml:"playground_seconds" validate:"gte=5"`
	PluginCheckSeconds int `toml:"plugin_check_seconds" validate:"gte=10"`
	PHPUnitSeconds     int `toml:"phpunit_seconds" validate:"gte=10"`
}

func (t Timeouts) Model() time.Duration       { return time.Duration(t.ModelSeconds) * time.Second }
func (t Timeouts) Syntax() time.Duration      { return time.Duration(t.SyntaxSeconds) * time.Second }
func (t Timeouts) Compose() time.Duration     { return time.Duration(t.ComposeSeconds) * time.Second }
func (t Timeouts) Activate() time.Duration    { return time.Duration(t.ActivateSeconds) * time.Second }
func (t Timeouts) Playground() time.Duration  { return time.Duration(t.PlaygroundSeconds) * time.Second }
func (t Timeouts) PluginCheck() time.Duration { return time.Duration(t.PluginCheckSeconds) * time.Second }
func (t Timeouts) PHPUnit() time.Duration     { return time.Duration(t.PHPUnitSeconds) * time.Second }

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wpforge", "config.toml")
}

// Default returns the built-in configuration before file and environment
// overrides are applied.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	var cfg Config
	cfg.Defaults.Model = "gpt-4o"
	cfg.Defaults.Temperature = 0.2
	cfg.Defaults.MaxRetries = 3
	cfg.Defaults.OutputDir = "plugins"
	cfg.Providers.Anthropic.DefaultModel = "claude-3-5-sonnet-20241022"
	cfg.Providers.OpenAI.DefaultModel = "gpt-4o"
	cfg.Providers.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Providers.Ollama.Host = "http://localhost:11434"
	cfg.Providers.Ollama.DefaultModel = "llama3.1"
	cfg.Limits.RequestsPerMinute = 30
	cfg.Limits.MaxToolLoops = 12
	cfg.Limits.MaxTokens = 8192
	cfg.Timeouts.ModelSeconds = 120
	cfg.Timeouts.SyntaxSeconds = 30
	cfg.Timeouts.ComposeSeconds = 180
	cfg.Timeouts.ActivateSeconds = 120
	cfg.Timeouts.PlaygroundSeconds = 90
	cfg.Timeouts.PluginCheckSeconds = 300
	cfg.Timeouts.PHPUnitSeconds = 300
	cfg.Backoff.BaseMillis = 500
	cfg.Backoff.MaxMillis = 30000
	cfg.Backoff.Multiplier = 2.0
	cfg.Knowledge.Enabled = true
	cfg.Knowledge.Embedder = "nomic-embed-text"
	cfg.Knowledge.ChunkSize = 512
	cfg.Knowledge.ChunkOverlap = 64
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(".wpforge", "history.db")
	return &cfg
}

// Load builds the effective configuration. Later sources win: built-in
// defaults, then the TOML file, then .env in the working directory, then
// process environment variables. The result is validated before use.
func Load() (*Config, error) {
	cfg := defaults()

	path := GetConfigPath()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Lets a project directory carry its own OPENAI_API_KEY etc. Missing
	// .env is the normal case, not an error.
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WPFORGE_MODEL")); v != "" {
		cfg.Defaults.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("WPFORGE_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Defaults.Temperature = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("WPFORGE_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MaxRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WPFORGE_OUTPUT_DIR")); v != "" {
		cfg.Defaults.OutputDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); v != "" {
		cfg.Providers.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Providers.Ollama.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("WPFORGE_DISABLE_HISTORY")); v == "1" || strings.EqualFold(v, "true") {
		cfg.History.Enabled = false
	}
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Backoff.MaxMillis < cfg.Backoff.BaseMillis {
		return fmt.Errorf("invalid configuration: backoff max %dms below base %dms", cfg.Backoff.MaxMillis, cfg.Backoff.BaseMillis)
	}
	if cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk overlap %d must be below chunk size %d", cfg.Knowledge.ChunkOverlap, cfg.Knowledge.ChunkSize)
	}
	return nil
}

func (c *Config) Save() error {
	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
