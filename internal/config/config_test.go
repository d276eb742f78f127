package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Watchlist) != len(DefaultWatchlist) {
		t.Fatalf("watchlist = %v", cfg.Watchlist)
	}
	if cfg.RiskLevel != "moderate" || cfg.AccountSize != 10000 {
		t.Fatalf("risk defaults: %+v", cfg)
	}
	if cfg.Analysis.DefaultDTE != 30 || cfg.Analysis.IVLookbackDays != 252 {
		t.Fatalf("analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.Scanner.HighVolume != 5000 {
		t.Fatalf("scanner thresholds not normalized: %+v", cfg.Scanner)
	}
	if cfg.Collector.DailySpec != "30 16 * * 1-5" {
		t.Fatalf("daily spec = %q", cfg.Collector.DailySpec)
	}
	if cfg.Server.Listen != ":8090" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
}

func TestLoadParsesAndKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
watchlist = ["SPY", "IWM"]
risk_level = "aggressive"
account_size = 50000

[polygon]
request_delay = "100ms"

[scanner]
high_volume = 9000

[server]
listen = ":9000"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Watchlist) != 2 || cfg.Watchlist[1] != "IWM" {
		t.Fatalf("watchlist = %v", cfg.Watchlist)
	}
	if cfg.RiskLevel != "aggressive" || cfg.AccountSize != 50000 {
		t.Fatalf("%+v", cfg)
	}
	if cfg.Scanner.HighVolume != 9000 {
		t.Fatalf("explicit threshold lost: %+v", cfg.Scanner)
	}
	// 未设置的阈值仍补默认
	if cfg.Scanner.VolOIRatio != 3 {
		t.Fatalf("default threshold missing: %+v", cfg.Scanner)
	}
	if cfg.Server.Listen != ":9000" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Polygon.RequestDelayDuration() != 100*time.Millisecond {
		t.Fatalf("request delay = %v", cfg.Polygon.RequestDelayDuration())
	}
}

func TestLoadRejectsBrokenTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("watchlist = [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "env-key")
	cfg := Normalize(&Config{Polygon: PolygonConfig{APIKey: "file-key"}})
	if cfg.Polygon.APIKey != "env-key" {
		t.Fatalf("api key = %q", cfg.Polygon.APIKey)
	}
}

func TestRequestDelayFallback(t *testing.T) {
	p := PolygonConfig{RequestDelay: "not-a-duration"}
	if got := p.RequestDelayDuration(); got != 12*time.Second {
		t.Fatalf("fallback delay = %v", got)
	}
}
