package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:      "postgres://localhost/transync",
		DBMinConns:       1,
		DBMaxConns:       4,
		GengoTimeout:     30 * time.Second,
		GengoLanguageMap: "zh-hans=zh,zh-hant=zh-tw",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadLanguageMap(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.GengoLanguageMap = "zh-hans"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected malformed language map to fail")
	}
	if _, err := cfg.LanguageMap(); err == nil {
		t.Fatalf("expected LanguageMap to report the malformed map")
	}
}

func TestLanguageMap(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	mapping, err := cfg.LanguageMap()
	if err != nil {
		t.Fatalf("LanguageMap() error = %v", err)
	}
	if mapping["zh-hans"] != "zh" || mapping["zh-hant"] != "zh-tw" {
		t.Fatalf("unexpected language map: %v", mapping)
	}
}

func TestCallbackURLCarriesSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got, err := cfg.CallbackURL(); err != nil || got != "" {
		t.Fatalf("expected empty callback URL, got %q (%v)", got, err)
	}

	cfg.GengoCallbackURL = "https://transync.example/gengo/callback?lang=de"
	if got, err := cfg.CallbackURL(); err != nil || got != cfg.GengoCallbackURL {
		t.Fatalf("expected callback URL unchanged without secret, got %q (%v)", got, err)
	}

	cfg.GengoCallbackSecret = "s3 cret"
	got, err := cfg.CallbackURL()
	if err != nil {
		t.Fatalf("CallbackURL() error = %v", err)
	}
	if want := "https://transync.example/gengo/callback?lang=de&secret=s3+cret"; got != want {
		t.Fatalf("unexpected callback URL: got %q want %q", got, want)
	}
}

func TestValidateRejectsMinAboveMax(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DBMinConns = 9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected min > max to fail")
	}
}

func TestParseLanguageMap(t *testing.T) {
	t.Parallel()

	mapping, err := ParseLanguageMap(" ZH-Hans = zh , ,zh-hant=ZH-TW")
	if err != nil {
		t.Fatalf("parse language map: %v", err)
	}
	if len(mapping) != 2 {
		t.Fatalf("unexpected mapping size: got %d want 2", len(mapping))
	}
	if mapping["zh-hans"] != "zh" || mapping["zh-hant"] != "zh-tw" {
		t.Fatalf("unexpected mapping: %+v", mapping)
	}
	if _, err := ParseLanguageMap("en=en,en=fr"); err == nil {
		t.Fatalf("expected duplicate local language to fail")
	}
}

func TestValidateProviderAllowsMockWithoutKeys(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.ValidateProvider(); err == nil {
		t.Fatalf("expected missing keys to fail")
	}
	cfg.GengoMockURL = "http://127.0.0.1:8099"
	if err := cfg.ValidateProvider(); err != nil {
		t.Fatalf("expected mock mode to skip key check, got %v", err)
	}
}
