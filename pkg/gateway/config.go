package gateway

import (
	"time"

	"github.com/reviewd/reviewd/internal/config"
)

// Config holds the configuration for the Gateway. Zero values fall back
// to the same defaults the standalone binary uses.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	GitHub  GitHubConfig
	LLM     LLMConfig
	Store   StoreConfig
	Queue   QueueConfig
	Workers WorkersConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration. Empty APIKeys disables
// authentication.
type AuthConfig struct {
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// GitHubConfig holds source-control host configuration
type GitHubConfig struct {
	APIURL     string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// LLMConfig holds reasoning backend configuration
type LLMConfig struct {
	Provider   string // "anthropic" or "openai"
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	MaxTokens  int
}

// StoreConfig selects the job store backend
type StoreConfig struct {
	Driver string // "memory" or "sqlite"
	Path   string // sqlite only
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	Size int
}

// WorkersConfig holds worker pool configuration
type WorkersConfig struct {
	Count            int
	JobTimeout       time.Duration
	WatchdogInterval time.Duration
	FileConcurrency  int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// toInternal converts the public config to the internal representation
// and applies defaults
func (cfg *Config) toInternal() *config.Config {
	apiKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		apiKeys[i] = config.APIKey{Name: key.Name, Key: key.Key}
	}

	internal := &config.Config{
		Server: config.ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		Auth: config.AuthConfig{APIKeys: apiKeys},
		GitHub: config.GitHubConfig{
			APIURL:     cfg.GitHub.APIURL,
			Token:      cfg.GitHub.Token,
			Timeout:    cfg.GitHub.Timeout,
			MaxRetries: cfg.GitHub.MaxRetries,
		},
		LLM: config.LLMConfig{
			Provider:   cfg.LLM.Provider,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
			MaxTokens:  cfg.LLM.MaxTokens,
		},
		Store: config.StoreConfig{
			Driver: cfg.Store.Driver,
			Path:   cfg.Store.Path,
		},
		Queue: config.QueueConfig{Size: cfg.Queue.Size},
		Workers: config.WorkersConfig{
			Count:            cfg.Workers.Count,
			JobTimeout:       cfg.Workers.JobTimeout,
			WatchdogInterval: cfg.Workers.WatchdogInterval,
			FileConcurrency:  cfg.Workers.FileConcurrency,
		},
		Logging: config.LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	}
	internal.ApplyDefaults()
	return internal
}
