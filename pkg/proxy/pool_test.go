package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		got := pool.Next()
		if got == nil || got.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, got)
		}
	}
}

func TestPool_EmptyReturnsNil(t *testing.T) {
	if got := NewPool(Config{}).Next(); got != nil {
		t.Errorf("expected nil from empty pool, got %v", got)
	}
}

func TestPool_BenchAndRecover(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := pool.Next()
	pool.Report(a, false)
	pool.Report(a, false)

	// a is benched, so b is served twice in a row.
	if got := pool.Next(); got.String() != "http://b" {
		t.Fatalf("expected http://b, got %v", got)
	}
	if got := pool.Next(); got.String() != "http://b" {
		t.Fatalf("expected http://b while a is benched, got %v", got)
	}

	// Bench b too: nothing is usable.
	b := pool.entries[1].url
	pool.Report(b, false)
	pool.Report(b, false)
	if got := pool.Next(); got != nil {
		t.Fatalf("expected nil when all proxies benched, got %v", got)
	}

	now = now.Add(2 * time.Minute)
	if got := pool.Next(); got == nil {
		t.Fatalf("expected a proxy to recover after cooldown")
	}
}

func TestPool_SuccessResetsFailures(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	_ = pool.Add("http://a")

	a := pool.Next()
	pool.Report(a, false)
	pool.Report(a, true)
	pool.Report(a, false)

	if got := pool.Next(); got == nil {
		t.Errorf("a success between failures should keep the proxy active")
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# comment\n\nhttp://10.0.0.1:3128\n10.0.0.2:3128\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("expected 2 proxies, got %d", pool.Len())
	}

	if err := pool.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
