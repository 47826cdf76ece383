package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/optisource/pkg/cache"
	errs "github.com/matzehuels/optisource/pkg/errors"
)

func validConfig() Config {
	return Config{
		Auth: Auth{
			SiteURL:  "https://cms.example.com",
			Username: "editor",
			Password: "secret",
		},
		Endpoints: []Endpoint{
			{NodeName: "OptimizelyHomePage", Endpoint: "/api/episerver/v2.0/content/5"},
		},
	}.WithDefaults()
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	if cfg.Auth.GrantType != "password" || cfg.Auth.ClientID != "Default" {
		t.Errorf("auth defaults = %q/%q", cfg.Auth.GrantType, cfg.Auth.ClientID)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v", cfg.Timeout())
	}
	if cfg.RequestConcurrency != DefaultRequestConcurrency {
		t.Errorf("RequestConcurrency = %d", cfg.RequestConcurrency)
	}
	if cfg.RequestRetries != 3 || cfg.RetryBackoff() != 500*time.Millisecond {
		t.Errorf("retries = %d backoff = %v", cfg.RequestRetries, cfg.RetryBackoff())
	}
	if cfg.TTL() != 24*time.Hour || cfg.TTL() != cache.DefaultTTL {
		t.Errorf("TTL() = %v, want cache.DefaultTTL", cfg.TTL())
	}
	if cfg.ThrottleInterval() != 0 || cfg.DebounceInterval() != 0 {
		t.Error("throttle and debounce should default to off")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing site url", func(c *Config) { c.Auth.SiteURL = "" }, false},
		{"bad site url", func(c *Config) { c.Auth.SiteURL = "ftp://cms" }, false},
		{"missing username", func(c *Config) { c.Auth.Username = "" }, false},
		{"missing password", func(c *Config) { c.Auth.Password = "" }, false},
		{"no endpoints", func(c *Config) { c.Endpoints = nil }, false},
		{"bad node name", func(c *Config) { c.Endpoints[0].NodeName = "1bad" }, false},
		{"relative endpoint", func(c *Config) { c.Endpoints[0].Endpoint = "content/5" }, false},
		{"duplicate node", func(c *Config) {
			c.Endpoints = append(c.Endpoints, Endpoint{NodeName: "OptimizelyHomePage", Endpoint: "/x"})
		}, false},
		{"negative throttle", func(c *Config) { c.RequestThrottleInterval = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errs.Is(err, errs.ErrCodeInvalidConfig) {
					t.Errorf("code = %s, want INVALID_CONFIG", errs.GetCode(err))
				}
			}
		})
	}
}

func TestHashExcludesPassword(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Auth.Password = "rotated"
	if a.Hash() != b.Hash() {
		t.Error("Hash() should not depend on the password")
	}

	c := validConfig()
	c.Endpoints[0].Endpoint = "/api/episerver/v2.0/content/6"
	if a.Hash() == c.Hash() {
		t.Error("Hash() should change with the endpoints")
	}
}

func TestHashIgnoresEndpointOrder(t *testing.T) {
	a := validConfig()
	a.Endpoints = append(a.Endpoints, Endpoint{NodeName: "OptimizelyMenu", Endpoint: "/menu"})
	b := validConfig()
	b.Endpoints = append([]Endpoint{{NodeName: "OptimizelyMenu", Endpoint: "/menu"}}, b.Endpoints...)

	if a.Hash() != b.Hash() {
		t.Error("Hash() should not depend on endpoint order")
	}
}

func TestFromMapListEndpoints(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"auth": map[string]any{
			"site_url": "https://cms.example.com",
			"username": "editor",
			"password": "secret",
			"headers":  map[string]any{"X-Site": "main"},
		},
		"endpoints": []any{
			map[string]any{"nodeName": "OptimizelyHomePage", "endpoint": "/home", "schema": "type Home {}"},
		},
		"request_timeout":     "5000",
		"request_concurrency": 4.0,
	})
	if err != nil {
		t.Fatalf("FromMap() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Auth.Headers["X-Site"] != "main" {
		t.Errorf("headers = %v", cfg.Auth.Headers)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Schema == "" {
		t.Errorf("endpoints = %+v", cfg.Endpoints)
	}
	if cfg.Timeout() != 5*time.Second || cfg.RequestConcurrency != 4 {
		t.Errorf("timeout = %v concurrency = %d", cfg.Timeout(), cfg.RequestConcurrency)
	}
}

func TestFromMapObjectEndpoints(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"auth": map[string]any{"site_url": "https://cms.example.com", "username": "u", "password": "p"},
		"endpoints": map[string]any{
			"OptimizelyMenu":     "/menu",
			"OptimizelyHomePage": map[string]any{"endpoint": "/home", "schema": "s"},
		},
	})
	if err != nil {
		t.Fatalf("FromMap() error: %v", err)
	}

	want := []Endpoint{
		{NodeName: "OptimizelyHomePage", Endpoint: "/home", Schema: "s"},
		{NodeName: "OptimizelyMenu", Endpoint: "/menu"},
	}
	if len(cfg.Endpoints) != len(want) {
		t.Fatalf("endpoints = %+v", cfg.Endpoints)
	}
	for i := range want {
		if cfg.Endpoints[i] != want[i] {
			t.Errorf("endpoints[%d] = %+v, want %+v", i, cfg.Endpoints[i], want[i])
		}
	}
}

func TestFromMapExplicitZeroRetries(t *testing.T) {
	cfg, err := FromMap(map[string]any{"request_retries": 0})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RequestRetries != 0 {
		t.Errorf("RequestRetries = %d, want 0", cfg.RequestRetries)
	}
}

func TestFromMapRejectsBadEndpoint(t *testing.T) {
	_, err := FromMap(map[string]any{"endpoints": map[string]any{"A": 42}})
	if !errs.Is(err, errs.ErrCodeInvalidConfig) {
		t.Errorf("FromMap() error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoad(t *testing.T) {
	files := map[string]string{
		"site.toml": `
request_throttle_interval = 100

[auth]
site_url = "https://cms.example.com"
username = "editor"
password = "secret"

[endpoints]
OptimizelyHomePage = "/home"
`,
		"site.yaml": `
request_throttle_interval: 100
auth:
  site_url: https://cms.example.com
  username: editor
  password: secret
endpoints:
  - nodeName: OptimizelyHomePage
    endpoint: /home
`,
		"site.jsonc": `{
  // throttle the CMS
  "request_throttle_interval": 100,
  "auth": {"site_url": "https://cms.example.com", "username": "editor", "password": "secret"},
  "endpoints": {"OptimizelyHomePage": "/home"},
}`,
	}

	dir := t.TempDir()
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if cfg.ThrottleInterval() != 100*time.Millisecond {
				t.Errorf("ThrottleInterval() = %v", cfg.ThrottleInterval())
			}
			if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Endpoint != "/home" {
				t.Errorf("endpoints = %+v", cfg.Endpoints)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errs.Is(err, errs.ErrCodeInvalidConfig) {
		t.Errorf("missing file error = %v", err)
	}

	path := filepath.Join(dir, "site.ini")
	_ = os.WriteFile(path, []byte("a=b"), 0o644)
	if _, err := Load(path); !errs.Is(err, errs.ErrCodeInvalidConfig) {
		t.Errorf("unsupported format error = %v", err)
	}
}
