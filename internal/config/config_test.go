package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_PHARMACIST_PIN", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedPharmacistPIN != "" {
		t.Fatalf("expected empty SEED_PHARMACIST_PIN when unset, got %q", cfg.SeedPharmacistPIN)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("expected empty GEMINI_API_KEY when unset, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadClampsBadDurations(t *testing.T) {
	t.Setenv("EXTRACT_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("EXTRACTION_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg := Load()
	if cfg.ExtractTimeoutSeconds != 90 {
		t.Errorf("extract timeout = %d, want default 90", cfg.ExtractTimeoutSeconds)
	}
	if cfg.ExtractionCacheTTLSeconds != 3600 {
		t.Errorf("cache ttl = %d, want default 3600", cfg.ExtractionCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Errorf("token ttl = %d, want default 480", cfg.AccessTokenTTLMinutes)
	}
}
