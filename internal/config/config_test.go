package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DatabaseURL != "sqlite://leadfinder.db" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Fetch.SearchTimeout != 10*time.Second || cfg.Fetch.WebsiteRetries != 1 {
		t.Errorf("unexpected fetch defaults %+v", cfg.Fetch)
	}
	if cfg.Audit.SlowThreshold != 3*time.Second || cfg.Pipeline.MaxResultsCap != 100 {
		t.Errorf("unexpected audit/pipeline defaults")
	}
	if cfg.Discovery.SearchURL != DefaultSearchURL || !cfg.Fetch.RespectRobots {
		t.Errorf("unexpected discovery defaults %+v", cfg.Discovery)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://leads:secret@db:5432/leads")
	t.Setenv("LEADFINDER_FETCH_HOST_DELAY", "250ms")
	t.Setenv("LEADFINDER_FETCH_USER_AGENTS", "agent-one, agent-two")
	t.Setenv("LEADFINDER_PIPELINE_WORKERS", "8")
	t.Setenv("LEADFINDER_DISCOVERY_SELECTORS_RESULT", "li.listing")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://leads:secret@db:5432/leads" {
		t.Errorf("bare DATABASE_URL not honoured, got %q", cfg.DatabaseURL)
	}
	if cfg.Fetch.HostDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms host delay, got %v", cfg.Fetch.HostDelay)
	}
	if !reflect.DeepEqual(cfg.Fetch.UserAgents, []string{"agent-one", "agent-two"}) {
		t.Errorf("unexpected user agents %q", cfg.Fetch.UserAgents)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Discovery.Selectors.Result != "li.listing" {
		t.Errorf("expected selector override, got %q", cfg.Discovery.Selectors.Result)
	}
}

func TestLoad_PrefixedDatabaseURLWins(t *testing.T) {
	t.Setenv("LEADFINDER_DATABASE_URL", "sqlite://prefixed.db")
	t.Setenv("DATABASE_URL", "sqlite://bare.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "sqlite://prefixed.db" {
		t.Errorf("expected prefixed variable to win, got %q", cfg.DatabaseURL)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadfinder.yaml")
	content := `
http_addr: ":9090"
fetch:
  tls_profile: firefox
  website_timeout: 45s
audit:
  placeholder_terms:
    - "coming soon"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("LEADFINDER_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("environment should override the file, got %q", cfg.HTTPAddr)
	}
	if cfg.Fetch.TLSProfile != "firefox" || cfg.Fetch.WebsiteTimeout != 45*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Fetch)
	}
	if !reflect.DeepEqual(cfg.Audit.PlaceholderTerms, []string{"coming soon"}) {
		t.Errorf("unexpected placeholder terms %q", cfg.Audit.PlaceholderTerms)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("expected error for an explicit missing file")
	}
}

func TestValidate(t *testing.T) {
	v, err := NewViper("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}

	cfg.DatabaseURL = ""
	cfg.Fetch.Jitter = 1.5
	cfg.Fetch.TLSProfile = "netscape"
	cfg.Discovery.SearchURL = "https://example.com/search"
	cfg.Pipeline.Workers = 0
	cfg.LogFormat = "xml"

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{
		"database_url is required",
		"fetch.jitter",
		`unknown profile "netscape"`,
		"{terms}",
		"pipeline.workers",
		"log_format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}
