package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Downloader  DownloaderConfig  `yaml:"downloader"`
	Paths       PathsConfig       `yaml:"paths"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Performance PerformanceConfig `yaml:"performance"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type LLMConfig struct {
	Backend           string        `yaml:"backend"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	ChunkSize         int           `yaml:"chunk_size"`
	StructuredTimeout time.Duration `yaml:"structured_timeout"`
	ReformatTimeout   time.Duration `yaml:"reformat_timeout"`
	StartupWait       time.Duration `yaml:"startup_wait"`
}

type TranscriberConfig struct {
	URL      string        `yaml:"url"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DownloaderConfig struct {
	BinaryPath      string        `yaml:"binary_path"`
	InfoTimeout     time.Duration `yaml:"info_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

type PathsConfig struct {
	Downloads  string `yaml:"downloads"`
	Thumbnails string `yaml:"thumbnails"`
	Inbox      string `yaml:"inbox"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type PerformanceConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

// Load reads .env, then the optional YAML file at path, then environment
// overrides, and finally validates. Missing .env or YAML files are not errors.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Logging.Level = envOr("LOG_LEVEL", c.Logging.Level)
	c.LLM.Backend = envOr("LLM_BACKEND", c.LLM.Backend)
	c.LLM.BaseURL = envOr("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = envOr("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = envOr("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.ChunkSize = envIntOr("CHUNK_SIZE", c.LLM.ChunkSize)
	c.Transcriber.URL = envOr("TRANSCRIBE_URL", c.Transcriber.URL)
	c.Transcriber.Language = envOr("TRANSCRIBE_LANGUAGE", c.Transcriber.Language)
	c.Downloader.BinaryPath = envOr("YTDLP_PATH", c.Downloader.BinaryPath)
	c.Paths.Downloads = envOr("DOWNLOADS_DIR", c.Paths.Downloads)
	c.Paths.Thumbnails = envOr("THUMBNAILS_DIR", c.Paths.Thumbnails)
	c.Paths.Inbox = envOr("INBOX_DIR", c.Paths.Inbox)
	c.Database.URL = envOr("DATABASE_URL", c.Database.URL)
	c.Performance.MaxConcurrentJobs = envIntOr("MAX_CONCURRENT_JOBS", c.Performance.MaxConcurrentJobs)
}

func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "":
		c.LLM.Backend = "ollama"
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("llm.backend %q is not supported", c.LLM.Backend)
	}
	if c.LLM.ChunkSize < 0 {
		return fmt.Errorf("llm.chunk_size must not be negative")
	}
	if c.Performance.MaxConcurrentJobs < 0 {
		return fmt.Errorf("performance.max_concurrent_jobs must not be negative")
	}
	if c.LLM.Backend != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for backend %s", c.LLM.Backend)
	}

	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.LLM.BaseURL == "" && c.LLM.Backend == "ollama" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Backend)
	}
	if c.LLM.ChunkSize == 0 {
		c.LLM.ChunkSize = 4000
	}
	if c.LLM.StructuredTimeout == 0 {
		c.LLM.StructuredTimeout = 120 * time.Second
	}
	if c.LLM.ReformatTimeout == 0 {
		c.LLM.ReformatTimeout = 180 * time.Second
	}
	if c.LLM.StartupWait == 0 {
		c.LLM.StartupWait = 10 * time.Second
	}
	if c.Transcriber.URL == "" {
		c.Transcriber.URL = "http://localhost:8080"
	}
	if c.Transcriber.Language == "" {
		c.Transcriber.Language = "auto"
	}
	if c.Transcriber.Timeout == 0 {
		c.Transcriber.Timeout = 30 * time.Minute
	}
	if c.Downloader.BinaryPath == "" {
		c.Downloader.BinaryPath = "yt-dlp"
	}
	if c.Downloader.InfoTimeout == 0 {
		c.Downloader.InfoTimeout = 60 * time.Second
	}
	if c.Downloader.DownloadTimeout == 0 {
		c.Downloader.DownloadTimeout = 5 * time.Minute
	}
	if c.Paths.Downloads == "" {
		c.Paths.Downloads = "downloads"
	}
	if c.Paths.Thumbnails == "" {
		c.Paths.Thumbnails = "thumbnails"
	}
	if c.Performance.MaxConcurrentJobs == 0 {
		c.Performance.MaxConcurrentJobs = 2
	}

	return nil
}

func defaultModel(backend string) string {
	switch backend {
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.5-flash"
	default:
		return "llama3.1:latest"
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envIntOr(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
