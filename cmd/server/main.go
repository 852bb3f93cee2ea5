package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"medscan/internal/cache"
	"medscan/internal/config"
	"medscan/internal/extract"
	"medscan/internal/extract/gemini"
	"medscan/internal/httpapi"
	"medscan/internal/service"
	"medscan/internal/store"
	"medscan/internal/store/memory"
	pgstore "medscan/internal/store/postgres"
	sqlitestore "medscan/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.SeedIfEmpty(ctx, seedPINHash(cfg)); err != nil {
			log.Fatalf("seed postgres: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	case cfg.SQLitePath != "":
		sq, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite unavailable (%v) and SQLITE_PATH is set; refusing to start with in-memory fallback", err)
		}
		if err := sq.SeedIfEmpty(ctx, seedPINHash(cfg)); err != nil {
			log.Fatalf("seed sqlite: %v", err)
		}
		repo = sq
		closers = append(closers, sq.Close)
		log.Println("repository: sqlite")
	default:
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	extractionCache := cache.ExtractionCache(cache.NoopExtractionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisExtractionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			extractionCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	var extractor extract.Extractor
	if cfg.GeminiAPIKey != "" {
		extractor = gemini.New(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Timeout: time.Duration(cfg.ExtractTimeoutSeconds) * time.Second,
		}, slog.Default())
		log.Println("extractor: gemini")
	} else {
		log.Println("extractor: none (scans will be recorded as unreadable)")
	}

	svc := service.New(repo, extractor, extractionCache,
		time.Duration(cfg.ExtractionCacheTTLSeconds)*time.Second,
		time.Duration(cfg.ExtractTimeoutSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("pharmacy backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// seedPINHash hashes the configured seed PIN for database-backed stores.
// Falls back to the dev PIN with a loud warning, same as the memory store.
func seedPINHash(cfg config.Config) string {
	pin := cfg.SeedPharmacistPIN
	if pin == "" {
		pin = "1234"
		log.Println("WARNING: using default dev PIN for seeded pharmacist. Set SEED_PHARMACIST_PIN to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash seed PIN: %v", err)
	}
	return string(hash)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedPharmacistPIN != "" {
		if len(cfg.SeedPharmacistPIN) < 4 {
			return fmt.Errorf("SEED_PHARMACIST_PIN must be at least 4 digits")
		}
		if err := validatePINStrength(cfg.SeedPharmacistPIN); err != nil {
			return fmt.Errorf("SEED_PHARMACIST_PIN is too weak: %w", err)
		}
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"1234": true, "0000": true, "1111": true, "2580": true,
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
