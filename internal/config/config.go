package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	AllowOrigins  []string
	LogLevel      string
	AppEnv        string
	ResetTokenTTL time.Duration
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	tokenTTL := 30 * time.Minute
	if v, err := time.ParseDuration(getenv("RESET_TOKEN_TTL", "30m")); err == nil && v > 0 {
		tokenTTL = v
	}

	return Config{
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   must("DATABASE_URL"),
		AllowOrigins:  splitAndTrim(getenv("ALLOW_ORIGINS", "*")),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		AppEnv:        getenv("APP_ENV", "production"),
		ResetTokenTTL: tokenTTL,
		SMTPHost:      getenv("SMTP_HOST", ""),
		SMTPPort:      getenv("SMTP_PORT", ""),
		SMTPUsername:  getenv("SMTP_USERNAME", ""),
		SMTPPassword:  getenv("SMTP_PASSWORD", ""),
		SMTPFrom:      getenv("SMTP_FROM", ""),
	}
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
