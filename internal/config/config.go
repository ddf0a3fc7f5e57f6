package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	// A missing .env is normal in production; the environment is used as is.
	_ = godotenv.Load()
}

func Get(key string) string {
	return os.Getenv(key)
}

type Config struct {
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	StateBackend string `env:"STATE_BACKEND" envDefault:"file"`
	StatePath    string `env:"STATE_PATH"`
	StateBackups int    `env:"STATE_BACKUPS" envDefault:"3"`
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"heartline:"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	AIProvider     string        `env:"AI_PROVIDER" envDefault:"openai"`
	OpenAIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL"`
	Model          string        `env:"MODEL_NAME" envDefault:"gpt-4o-mini"`
	Temperature    float32       `env:"AI_TEMPERATURE" envDefault:"0.75"`
	AITimeout      time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`
	AIRetries      int           `env:"AI_RETRIES" envDefault:"3"`
	EmbeddingKey   string        `env:"EMBEDDING_API_KEY"`
	EmbeddingURL   string        `env:"EMBEDDING_BASE_URL"`
	EmbeddingModel string        `env:"EMBEDDING_MODEL_NAME" envDefault:"text-embedding-3-small"`
	Embeddings     bool          `env:"EMBEDDINGS" envDefault:"true"`

	PersonaPath  string        `env:"PERSONA_PATH"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"40"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	DiscordToken     string        `env:"DISCORD_TOKEN"`
	DiscordUserID    string        `env:"DISCORD_USER_ID"`
	DiscordPoll      time.Duration `env:"DISCORD_POLL" envDefault:"15s"`
	DiscordChannelID string        `env:"DISCORD_CHANNEL_ID"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.DataDir, "state.json")
	}
	if cfg.EmbeddingKey == "" {
		cfg.EmbeddingKey = cfg.OpenAIKey
	}
	if cfg.EmbeddingURL == "" {
		cfg.EmbeddingURL = cfg.OpenAIBaseURL
	}
	switch cfg.StateBackend {
	case "file", "redis", "memory":
	default:
		return nil, fmt.Errorf("unsupported STATE_BACKEND: %s", cfg.StateBackend)
	}
	return cfg, nil
}

// EmbeddingsEnabled reports whether an embedding endpoint is configured.
func (c *Config) EmbeddingsEnabled() bool {
	return c.Embeddings && c.EmbeddingKey != ""
}
