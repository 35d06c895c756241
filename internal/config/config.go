package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port              string
	PublicURL         string
	PostgresURL       string
	TemporalAddress   string
	TemporalTaskQueue string
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	OpenAIAPIKey      string
	OpenRouterAPIKey  string
	LLMSecretsKey     string
	SearchEnabled     bool
	SearchMaxResults  int
	SearchTimeoutSecs int
	LogLevel          string
}

func Load() Config {
	port := getEnv("FENNEC_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	return Config{
		Port:              port,
		PublicURL:         getEnv("FENNEC_URL", "http://localhost:"+port),
		PostgresURL:       postgresURL,
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "fennec-chats"),
		LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
		LLMModel:          getEnv("LLM_MODEL", "qwen3:8b"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		LLMSecretsKey:     getEnv("LLM_SECRETS_KEY", ""),
		SearchEnabled:     getEnvBool("SEARCH_ENABLED", true),
		SearchMaxResults:  getEnvInt("SEARCH_MAX_RESULTS", 3),
		SearchTimeoutSecs: getEnvInt("SEARCH_TIMEOUT_SECONDS", 15),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "fennec")
	password := getEnv("POSTGRES_PASSWORD", "fennec")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "fennec")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
