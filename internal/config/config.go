package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	LLM         LLMConfig
	PlantUML    PlantUMLConfig
	Prompt      PromptConfig
	Redis       RedisConfig
	Session     SessionConfig
	CacheEnable bool     `env:"CACHE_ENABLE"`
	CORSOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	Timeout         time.Duration `env:"SERVER_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ThrottleLimit   int           `env:"SERVER_THROTTLE_LIMIT" envDefault:"50"`
}

type LLMConfig struct {
	Provider     string `env:"LLM_PROVIDER" envDefault:"openai"`
	APIKey       string `env:"LLM_API_KEY"`
	BaseURL      string `env:"LLM_API_BASE"`
	Model        string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
}

type PlantUMLConfig struct {
	// URLTemplate may contain {format} and {encoded} markers. When empty,
	// the URL is built as {ServerURL}/{Format}/{encoded}.
	URLTemplate string        `env:"PLANTUML_SERVER_URL_TEMPLATE"`
	ServerURL   string        `env:"PLANTUML_SERVER_URL" envDefault:"http://localhost:8080"`
	Format      string        `env:"PLANTUML_FORMAT" envDefault:"png"`
	Timeout     time.Duration `env:"PLANTUML_TIMEOUT" envDefault:"10s"`
}

type PromptConfig struct {
	TemplatePath string `env:"PROMPT_TEMPLATE_PATH"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:"redis:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"10m"`
}

type SessionConfig struct {
	HistoryLimit int           `env:"SESSION_HISTORY_LIMIT" envDefault:"10"`
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	MaxSessions  int           `env:"SESSION_MAX" envDefault:"1024"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
