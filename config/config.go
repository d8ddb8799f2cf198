package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "contentpipe.toml"

// LLM selects and configures the text model.
type LLM struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxTokens      int64   `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
}

// Image selects and configures the image model.
type Image struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Size     string `toml:"size"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// Pipeline tunes the content workflow.
type Pipeline struct {
	TopicCount int  `toml:"topic_count"`
	Scoring    bool `toml:"scoring"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the whole contentpipe configuration.
type Config struct {
	ServerAddr  string   `toml:"server_addr"`
	OutputDir   string   `toml:"output_dir"`
	ExchangeLog string   `toml:"exchange_log"`
	LLM         LLM      `toml:"llm"`
	Image       Image    `toml:"image"`
	Pipeline    Pipeline `toml:"pipeline"`
	Logging     Logging  `toml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ServerAddr: "127.0.0.1:8080",
		OutputDir:  "out",
		LLM: LLM{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxTokens:      2048,
			Temperature:    0.7,
		},
		Image: Image{
			Provider: "openai",
			Model:    "dall-e-3",
			Size:     "1024x1024",
		},
		Pipeline: Pipeline{TopicCount: 5, Scoring: true},
		Logging:  Logging{Format: "text", Level: "info"},
	}
}

// Load reads .env files, then the TOML file at path (or DefaultPath when path
// is empty and that file exists), then applies environment overrides and
// validates the result. It returns the config and the file actually read, if any.
func Load(path string) (*Config, string, error) {
	LoadEnv(nil)

	cfg := Default()
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

// LoadEnv loads .env from the working directory without overriding variables
// already set in the process.
func LoadEnv(logger logrus.FieldLogger) {
	const file = ".env"
	if _, err := os.Stat(file); err != nil {
		return
	}
	if err := godotenv.Load(file); err != nil && logger != nil {
		logger.WithError(err).Warnf("Failed to load %s", file)
	}
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	if _, err := os.Stat(DefaultPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config file: %w", err)
	}
	return DefaultPath, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("CONTENTPIPE_API_KEY")); v != "" {
		c.LLM.APIKey = v
	}
	openaiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if c.LLM.APIKey == "" {
		switch strings.ToLower(c.LLM.Provider) {
		case "anthropic":
			c.LLM.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		case "openai", "deepseek":
			c.LLM.APIKey = openaiKey
		}
	}
	if c.Image.APIKey == "" {
		c.Image.APIKey = openaiKey
	}
	if c.Image.APIKey == "" && strings.EqualFold(c.LLM.Provider, "openai") {
		c.Image.APIKey = c.LLM.APIKey
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Image.Provider = strings.ToLower(strings.TrimSpace(c.Image.Provider))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.Image.BaseURL = strings.TrimRight(strings.TrimSpace(c.Image.BaseURL), "/")
	if c.LLM.Provider == "mock" && c.Image.Provider == "openai" && c.Image.APIKey == "" {
		c.Image.Provider = "placeholder"
	}
	if c.OutputDir != "" {
		c.OutputDir = filepath.Clean(c.OutputDir)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	case "deepseek":
		if c.LLM.BaseURL == "" {
			return errors.New("llm.base_url is required for the deepseek provider")
		}
	case "mock":
	default:
		return fmt.Errorf("llm.provider %q is not supported (openai, deepseek, anthropic, mock)", c.LLM.Provider)
	}
	if c.LLM.Provider != "mock" {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the %s provider", c.LLM.Provider)
		}
		if c.LLM.Model == "" {
			return errors.New("llm.model is required")
		}
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}

	switch c.Image.Provider {
	case "placeholder":
	case "openai":
		if c.Image.APIKey == "" {
			return errors.New("image.api_key is required for the openai image provider (or set image.provider = \"placeholder\")")
		}
	default:
		return fmt.Errorf("image.provider %q is not supported (openai, placeholder)", c.Image.Provider)
	}

	if c.Pipeline.TopicCount < 1 || c.Pipeline.TopicCount > 20 {
		return errors.New("pipeline.topic_count must be between 1 and 20")
	}
	if c.ServerAddr == "" {
		return errors.New("server_addr is required")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (text, json)", c.Logging.Format)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// CreateSample writes the commented sample configuration to path. Existing
// files are never overwritten.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
