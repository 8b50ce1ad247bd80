package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "odds-pipeline")
	t.Setenv("ODDS_SPORTS", "soccer_epl, ,basketball_nba")
	t.Setenv("ODDS_CHUNK_DELAY", "250ms")
	t.Setenv("ODDS_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("KAFKA_SINK_ENABLED", "false")

	cfg := Load()
	if cfg.MetricsPort != "9097" {
		t.Fatalf("metrics port = %q", cfg.MetricsPort)
	}
	if len(cfg.Feed.Sports) != 2 || cfg.Feed.Sports[1] != "basketball_nba" {
		t.Fatalf("sports = %v", cfg.Feed.Sports)
	}
	if cfg.Feed.ChunkDelay != 250*time.Millisecond {
		t.Fatalf("chunk delay = %s", cfg.Feed.ChunkDelay)
	}
	if cfg.Feed.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d", cfg.Feed.MaxAttempts)
	}
	if cfg.KafkaSinkEnabled {
		t.Fatal("kafka sink should be disabled")
	}
	if cfg.Lifecycle.GraceWindow != 3*time.Hour || cfg.TopicBetPlaced == "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFeedFile(t *testing.T) {
	base := Load().Feed
	base.APIKey = "from-env"

	path := filepath.Join(t.TempDir(), "feed.yaml")
	content := "sports: [soccer_brazil_campeonato]\nmax_markets_per_request: 2\nchunk_delay: 2s\napi_key: ignored\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFeedFile(path, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sports) != 1 || got.Sports[0] != "soccer_brazil_campeonato" {
		t.Fatalf("sports = %v", got.Sports)
	}
	if got.MaxMarketsPerRequest != 2 || got.ChunkDelay != 2*time.Second {
		t.Fatalf("feed = %+v", got)
	}
	if got.APIKey != "from-env" || got.BaseURL != base.BaseURL {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	if same, err := LoadFeedFile("", base); err != nil || same.BaseURL != base.BaseURL {
		t.Fatalf("empty path = %+v, %v", same, err)
	}
	if _, err := LoadFeedFile(filepath.Join(t.TempDir(), "missing.yaml"), base); err == nil {
		t.Fatal("expected error for missing file")
	}
}
