package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	DatabaseURL               string
	SQLitePath                string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	AuthSecret                string
	AccessTokenTTLMinutes     int
	GeminiAPIKey              string
	GeminiBaseURL             string
	GeminiModel               string
	ExtractTimeoutSeconds     int
	ExtractionCacheTTLSeconds int
	SeedPharmacistPIN         string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	extractTimeout, err := strconv.Atoi(getEnv("EXTRACT_TIMEOUT_SECONDS", "90"))
	if err != nil || extractTimeout < 1 {
		extractTimeout = 90
	}
	cacheTTL, err := strconv.Atoi(getEnv("EXTRACTION_CACHE_TTL_SECONDS", "3600"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 3600
	}

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		SQLitePath:                os.Getenv("SQLITE_PATH"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:     tokenTTL,
		GeminiAPIKey:              strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:             os.Getenv("GEMINI_BASE_URL"),
		GeminiModel:               os.Getenv("GEMINI_MODEL"),
		ExtractTimeoutSeconds:     extractTimeout,
		ExtractionCacheTTLSeconds: cacheTTL,
		SeedPharmacistPIN:         strings.TrimSpace(os.Getenv("SEED_PHARMACIST_PIN")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
