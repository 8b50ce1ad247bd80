package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/config"
)

const oddsBody = `[{
  "id": "ev1",
  "sport_key": "soccer_epl",
  "sport_title": "EPL",
  "commence_time": "2026-10-17T15:00:00Z",
  "home_team": "Arsenal",
  "away_team": "Chelsea",
  "bookmakers": [{
    "key": "pinnacle",
    "title": "Pinnacle",
    "last_update": "2026-10-17T10:00:00Z",
    "markets": [{
      "key": "h2h",
      "last_update": "2026-10-17T10:00:00Z",
      "outcomes": [{"name": "Arsenal", "price": 2.1}, {"name": "Chelsea", "price": 3.4}, {"name": "Draw", "price": 3.2}]
    }]
  }]
}]`

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testConfig(base string) config.FeedConfig {
	return config.FeedConfig{
		BaseURL:              base,
		APIKey:               "k",
		Regions:              []string{"eu"},
		MaxMarketsPerRequest: 2,
		MaxAttempts:          3,
		BackoffBase:          time.Millisecond,
		BackoffMax:           4 * time.Millisecond,
		Timeout:              time.Second,
		ScoresDaysFrom:       3,
	}
}

func TestFetchOddsChunksMarkets(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/sports/soccer_epl/odds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("markets"))
		mu.Unlock()
		w.Header().Set("x-requests-remaining", "480")
		w.Header().Set("x-requests-used", "20")
		w.Header().Set("x-requests-last", "2")
		_, _ = w.Write([]byte(oddsBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zap.NewNop(), WithSleep(noSleep))
	got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h", "spreads", "totals"})

	if len(seen) != 2 || seen[0] != "h2h,spreads" || seen[1] != "totals" {
		t.Fatalf("markets per request = %v", seen)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want one per chunk", len(got))
	}
	if got[0].EventID != "ev1" || got[0].Bookmakers[0].Markets[0].Outcomes[0].Price != 2.1 {
		t.Fatalf("unexpected event %+v", got[0])
	}
	q := c.Quota()
	if q.Remaining != 480 || q.Used != 20 || q.Last != 2 {
		t.Fatalf("quota = %+v", q)
	}
}

func TestFetchOddsRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(oddsBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zap.NewNop(), WithSleep(noSleep))
	got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h"})
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestFetchOddsDegradesToEmpty(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zap.NewNop(), WithSleep(noSleep))
	if got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h"}); len(got) != 0 {
		t.Fatalf("expected empty result, got %d events", len(got))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want MaxAttempts", calls)
	}
}

func TestFetchOddsRetriesClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte(oddsBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zap.NewNop(), WithSleep(noSleep))
	if got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h"}); len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestFetchOddsFallbackSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := `{"soccer_epl": ` + oddsBody + `}`
	if err := os.WriteFile(path, []byte(snap), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(srv.URL)
	cfg.FallbackSnapshotPath = path
	c := New(cfg, zap.NewNop(), WithSleep(noSleep))

	got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h"})
	if len(got) != 1 || len(got[0].Bookmakers) != 1 {
		t.Fatalf("expected snapshot event, got %+v", got)
	}

	// o snapshot só contém h2h; um chunk de totals volta sem bookmakers
	got = c.FetchOdds(context.Background(), "soccer_epl", []string{"totals"})
	if len(got) != 1 || len(got[0].Bookmakers) != 0 {
		t.Fatalf("expected filtered snapshot, got %+v", got)
	}
}

func TestDisabledWithoutAPIKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = ""
	c := New(cfg, zap.NewNop())
	if !c.Disabled() {
		t.Fatal("expected disabled client")
	}
	if got := c.FetchOdds(context.Background(), "soccer_epl", []string{"h2h"}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := c.FetchScores(context.Background(), "soccer_epl", nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("disabled client hit upstream %d times", calls)
	}
}

func TestFetchScoresKeepsCompleted(t *testing.T) {
	body := `[
	  {"id":"a","sport_key":"soccer_epl","home_team":"Arsenal","away_team":"Chelsea","completed":true,
	   "scores":[{"name":"Arsenal","score":"3"},{"name":"Chelsea","score":"1"}]},
	  {"id":"b","sport_key":"soccer_epl","home_team":"Leeds","away_team":"Everton","completed":false,
	   "scores":[{"name":"Leeds","score":"0"},{"name":"Everton","score":"0"}]},
	  {"id":"c","sport_key":"soccer_epl","home_team":"Spurs","away_team":"Wolves","completed":true,"scores":null}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/sports/soccer_epl/scores" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("eventIds"); got != "a,b,c" {
			t.Errorf("eventIds = %q", got)
		}
		if got := r.URL.Query().Get("daysFrom"); got != "3" {
			t.Errorf("daysFrom = %q", got)
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zap.NewNop(), WithSleep(noSleep))
	got := c.FetchScores(context.Background(), "soccer_epl", []string{"a", "b", "c"})
	if len(got) != 1 || got[0].EventID != "a" {
		t.Fatalf("got %+v", got)
	}
	h, a, err := got[0].FinalScore()
	if err != nil || h != 3 || a != 1 {
		t.Fatalf("final score = %d-%d (%v)", h, a, err)
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]string{"a", "b", "c", "d", "e"}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != "e" {
		t.Fatalf("got %v", got)
	}
	if got := Chunk(nil, 3); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
