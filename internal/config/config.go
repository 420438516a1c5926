package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"TS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"TS_DB_MAX_CONNS" default:"8"`

	GengoPublicKey    string        `envconfig:"GENGO_PUBLIC_KEY" default:""`
	GengoPrivateKey   string        `envconfig:"GENGO_PRIVATE_KEY" default:""`
	GengoUseSandbox   bool          `envconfig:"GENGO_USE_SANDBOX" default:"false"`
	GengoMockURL      string        `envconfig:"GENGO_MOCK_URL" default:""`
	GengoDebug        bool          `envconfig:"GENGO_DEBUG" default:"false"`
	GengoTimeout      time.Duration `envconfig:"GENGO_TIMEOUT" default:"30s"`
	GengoAutoApprove  bool          `envconfig:"GENGO_AUTO_APPROVE" default:"false"`
	GengoUsePreferred bool          `envconfig:"GENGO_USE_PREFERRED" default:"false"`
	GengoCallbackURL  string        `envconfig:"GENGO_CALLBACK_URL" default:""`

	// GengoCallbackSecret is appended to GENGO_CALLBACK_URL as ?secret= and
	// checked on every callback request.
	GengoCallbackSecret string `envconfig:"GENGO_CALLBACK_SECRET" default:""`

	// GengoLanguageMap holds local=remote pairs, for example "zh-hans=zh,zh-hant=zh-tw".
	GengoLanguageMap string `envconfig:"GENGO_LANGUAGE_MAP" default:"zh-hans=zh,zh-hant=zh-tw"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"0s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("TS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("TS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("TS_DB_MIN_CONNS (%d) cannot exceed TS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.GengoTimeout <= 0 {
		return fmt.Errorf("GENGO_TIMEOUT must be > 0")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL must be >= 0")
	}
	if mock := strings.TrimSpace(c.GengoMockURL); mock != "" {
		if _, err := url.ParseRequestURI(mock); err != nil {
			return fmt.Errorf("GENGO_MOCK_URL is not a valid URL: %w", err)
		}
	}
	if callback := strings.TrimSpace(c.GengoCallbackURL); callback != "" {
		if _, err := url.ParseRequestURI(callback); err != nil {
			return fmt.Errorf("GENGO_CALLBACK_URL is not a valid URL: %w", err)
		}
	}
	if _, err := ParseLanguageMap(c.GengoLanguageMap); err != nil {
		return fmt.Errorf("GENGO_LANGUAGE_MAP: %w", err)
	}
	return nil
}

// ValidateProvider reports whether the provider credentials are usable. The
// mock service accepts any key pair.
func (c *Config) ValidateProvider() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.GengoMockURL) != "" {
		return nil
	}
	if strings.TrimSpace(c.GengoPublicKey) == "" || strings.TrimSpace(c.GengoPrivateKey) == "" {
		return fmt.Errorf("GENGO_PUBLIC_KEY and GENGO_PRIVATE_KEY are required")
	}
	return nil
}

// LanguageMap returns the parsed local-to-remote language code table.
func (c *Config) LanguageMap() (map[string]string, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}
	mapping, err := ParseLanguageMap(c.GengoLanguageMap)
	if err != nil {
		return nil, fmt.Errorf("GENGO_LANGUAGE_MAP: %w", err)
	}
	return mapping, nil
}

// CallbackURL returns the callback URL sent with submissions, carrying the
// callback secret when one is configured.
func (c *Config) CallbackURL() (string, error) {
	if c == nil {
		return "", fmt.Errorf("config is nil")
	}
	raw := strings.TrimSpace(c.GengoCallbackURL)
	secret := strings.TrimSpace(c.GengoCallbackSecret)
	if raw == "" || secret == "" {
		return raw, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("GENGO_CALLBACK_URL is not a valid URL: %w", err)
	}
	query := parsed.Query()
	query.Set("secret", secret)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func ParseLanguageMap(raw string) (map[string]string, error) {
	mapping := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		pair := strings.TrimSpace(part)
		if pair == "" {
			continue
		}
		local, remote, ok := strings.Cut(pair, "=")
		local = strings.ToLower(strings.TrimSpace(local))
		remote = strings.ToLower(strings.TrimSpace(remote))
		if !ok || local == "" || remote == "" {
			return nil, fmt.Errorf("invalid pair %q, expected local=remote", pair)
		}
		if _, exists := mapping[local]; exists {
			return nil, fmt.Errorf("duplicate local language %q", local)
		}
		mapping[local] = remote
	}
	return mapping, nil
}
