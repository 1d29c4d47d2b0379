package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadRefreshInterval(t *testing.T) {
	t.Setenv("STOCK_REFRESH_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.StockRefreshSeconds != 15 {
		t.Fatalf("expected default refresh interval 15, got %d", cfg.StockRefreshSeconds)
	}

	t.Setenv("STOCK_REFRESH_SECONDS", "-3")
	cfg = Load()
	if cfg.StockRefreshSeconds != 15 {
		t.Fatalf("expected default refresh interval 15 for negative input, got %d", cfg.StockRefreshSeconds)
	}
}
