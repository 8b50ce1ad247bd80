package merge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

type memStore struct {
	mu      sync.Mutex
	docs    map[string]models.OddsRecord
	writes  int
	failIDs map[string]bool
	failGet int // falha as primeiras N consultas
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]models.OddsRecord{}, failIDs: map[string]bool{}}
}

func (s *memStore) GetOdds(_ context.Context, ids []string) (map[string]models.OddsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet > 0 {
		s.failGet--
		return nil, errors.New("connection reset")
	}
	out := map[string]models.OddsRecord{}
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (s *memStore) UpsertOdds(_ context.Context, rec models.OddsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[rec.EventID] {
		return errors.New("write conflict")
	}
	s.writes++
	s.docs[rec.EventID] = rec
	return nil
}

func newEngine(s Store, batch int) *Engine {
	e := NewEngine(s, config.MergeConfig{WriteBatchSize: batch, WritePause: time.Hour}, zap.NewNop(), nil)
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

var (
	t0 = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
)

func point(v float64) *float64 { return &v }

func event(id string, bms ...models.Bookmaker) models.OddsRecord {
	return models.OddsRecord{
		EventID:      id,
		SportKey:     "soccer_epl",
		HomeTeam:     "Arsenal",
		AwayTeam:     "Chelsea",
		CommenceTime: t0.Add(5 * time.Hour),
		Bookmakers:   bms,
	}
}

func bookmaker(key string, ms ...models.Market) models.Bookmaker {
	return models.Bookmaker{Key: key, Title: key, LastUpdate: t0, Markets: ms}
}

func market(key string, at time.Time, prices ...float64) models.Market {
	m := models.Market{Key: key, LastUpdate: at}
	names := []string{"Arsenal", "Chelsea", "Draw"}
	for i, p := range prices {
		m.Outcomes = append(m.Outcomes, models.Outcome{Name: names[i%3], Price: p})
	}
	return m
}

func TestMergeIsIdempotent(t *testing.T) {
	store := newMemStore()
	e := newEngine(store, 10)
	b := Batch{Sport: "soccer_epl", FetchedAt: t1, Events: []models.OddsRecord{
		event("ev1", bookmaker("pinnacle", market("h2h", t0, 2.1, 3.4, 3.2)), bookmaker("bet365", market("Asian_Handicap", t0, 1.9, 1.9))),
		event("ev2", bookmaker("pinnacle", market("totals", t0, 1.8, 2.0))),
	}}

	first := e.Merge(context.Background(), b)
	if first.Created != 2 || len(first.Changed) != 2 {
		t.Fatalf("first merge = %+v", first)
	}
	snapshot := map[string]models.OddsRecord{}
	for k, v := range store.docs {
		snapshot[k] = v
	}
	writes := store.writes

	second := e.Merge(context.Background(), b)
	if second.Unchanged != 2 || second.Created != 0 || second.Updated != 0 || len(second.Changed) != 0 {
		t.Fatalf("second merge = %+v", second)
	}
	if store.writes != writes {
		t.Fatalf("second merge wrote %d documents", store.writes-writes)
	}
	if !reflect.DeepEqual(snapshot, store.docs) {
		t.Fatal("state changed after re-merging the same batch")
	}
	if got := store.docs["ev1"].Bookmakers[0].Key; got != "bet365" {
		t.Fatalf("bookmakers not sorted, first = %s", got)
	}
	if got := store.docs["ev1"].Bookmakers[0].Markets[0].Key; got != "spreads" {
		t.Fatalf("market key not canonical: %s", got)
	}
}

func TestMergeEmptyOutcomesNeverErase(t *testing.T) {
	existing := event("ev1", bookmaker("pinnacle", market("h2h", t0, 2.1, 3.4, 3.2)))
	incoming := event("ev1", bookmaker("pinnacle", models.Market{Key: "h2h", LastUpdate: t1}))

	got := MergeRecord(existing, incoming)
	m, ok := got.Bookmakers[0].Market("h2h")
	if !ok || len(m.Outcomes) != 3 || m.Outcomes[0].Price != 2.1 {
		t.Fatalf("existing outcomes lost: %+v", got.Bookmakers)
	}
}

func TestMergePreservesAbsentBookmakersAndMarkets(t *testing.T) {
	existing := event("ev1",
		bookmaker("pinnacle", market("h2h", t0, 2.1, 3.4, 3.2), market("totals", t0, 1.9, 1.9)),
		bookmaker("bet365", market("h2h", t0, 2.0, 3.5, 3.1)),
	)
	incoming := event("ev1", bookmaker("pinnacle", market("h2h", t1, 2.2, 3.3, 3.2)))

	got := MergeRecord(existing, incoming)
	if len(got.Bookmakers) != 2 {
		t.Fatalf("bookmakers = %d, want 2", len(got.Bookmakers))
	}
	bet365, _ := got.Bookmaker("bet365")
	if m, _ := bet365.Market("h2h"); m.Outcomes[0].Price != 2.0 {
		t.Fatalf("absent bookmaker changed: %+v", bet365)
	}
	pin, _ := got.Bookmaker("pinnacle")
	if m, _ := pin.Market("h2h"); m.Outcomes[0].Price != 2.2 {
		t.Fatalf("fresh price not applied: %+v", m)
	}
	if _, ok := pin.Market("totals"); !ok {
		t.Fatal("absent market dropped")
	}
}

func TestMergeIgnoresOlderMarket(t *testing.T) {
	existing := event("ev1", bookmaker("pinnacle", market("h2h", t1, 2.2, 3.3, 3.2)))
	stale := event("ev1", bookmaker("pinnacle", market("h2h", t0, 1.5, 5.0, 4.0)))

	a := MergeRecord(existing, stale)
	if m, _ := a.Bookmakers[0].Market("h2h"); m.Outcomes[0].Price != 2.2 {
		t.Fatalf("stale market overwrote fresh one: %+v", m)
	}

	// ordem inversa chega no mesmo documento
	b := MergeRecord(MergeRecord(models.OddsRecord{}, stale), existing)
	if !sameContent(a, b) {
		t.Fatalf("merge depends on arrival order:\n%+v\n%+v", a, b)
	}
}

func TestMergeUndatedMarketStillUpdates(t *testing.T) {
	existing := event("ev1", bookmaker("pinnacle", market("h2h", t1, 1.5, 4.0, 6.0)))
	undated := event("ev1", bookmaker("pinnacle", market("h2h", time.Time{}, 2.5, 3.1, 2.9)))

	got := MergeRecord(existing, undated)
	if m, _ := got.Bookmakers[0].Market("h2h"); m.Outcomes[0].Price != 2.5 {
		t.Fatalf("undated prices were discarded: %+v", m)
	}

	// e um preço datado sobrescreve o que chegou sem data
	got = MergeRecord(got, event("ev1", bookmaker("pinnacle", market("h2h", t0, 1.9, 3.4, 4.1))))
	if m, _ := got.Bookmakers[0].Market("h2h"); m.Outcomes[0].Price != 1.9 {
		t.Fatalf("dated prices did not replace undated ones: %+v", m)
	}
}

func TestMergeKeepsAlternateLinesApart(t *testing.T) {
	existing := event("ev1", bookmaker("pinnacle", market("spreads", t1, 1.9, 1.9)))
	incoming := event("ev1", bookmaker("pinnacle", market("alternate_spreads", t1, 2.6, 1.5)))

	got := MergeRecord(existing, incoming)
	main, ok := got.Bookmakers[0].Market("spreads")
	if !ok || main.Outcomes[0].Price != 1.9 {
		t.Fatalf("main line overwritten: %+v", got.Bookmakers[0].Markets)
	}
	if alt, ok := got.Bookmakers[0].Market("alternate_spreads"); !ok || alt.Outcomes[0].Price != 2.6 {
		t.Fatalf("alternate line missing: %+v", got.Bookmakers[0].Markets)
	}
}

func TestMergeReplacesOutcomesAndKeepsPoints(t *testing.T) {
	existing := event("ev1", bookmaker("pinnacle", models.Market{Key: "spreads", LastUpdate: t0, Outcomes: []models.Outcome{
		{Name: "Arsenal", Price: 1.9, Point: point(-1.5)},
		{Name: "Chelsea", Price: 1.9, Point: point(1.5)},
	}}))
	incoming := event("ev1", bookmaker("pinnacle", models.Market{Key: "handicap", LastUpdate: t1, Outcomes: []models.Outcome{
		{Name: "Arsenal", Price: 2.05, Point: point(-1)},
		{Name: "Chelsea", Price: 1.8, Point: point(1)},
	}}))

	got := MergeRecord(existing, incoming)
	m, _ := got.Bookmakers[0].Market("spreads")
	if len(got.Bookmakers[0].Markets) != 1 || *m.Outcomes[0].Point != -1 || m.Outcomes[0].Price != 2.05 {
		t.Fatalf("unexpected market %+v", got.Bookmakers[0].Markets)
	}
	*incoming.Bookmakers[0].Markets[0].Outcomes[0].Point = 99
	if *m.Outcomes[0].Point != -1 {
		t.Fatal("merged record aliases incoming outcomes")
	}
}

func TestMergeFoldsDuplicateEventsFromChunks(t *testing.T) {
	store := newMemStore()
	e := newEngine(store, 10)
	rep := e.Merge(context.Background(), Batch{FetchedAt: t1, Events: []models.OddsRecord{
		event("ev1", bookmaker("pinnacle", market("h2h", t0, 2.1, 3.4, 3.2))),
		event("ev1", bookmaker("pinnacle", market("totals", t0, 1.9, 1.9))),
	}})
	if rep.Created != 1 || store.writes != 1 {
		t.Fatalf("report %+v, writes %d", rep, store.writes)
	}
	if got := len(store.docs["ev1"].Bookmakers[0].Markets); got != 2 {
		t.Fatalf("markets = %d, want 2", got)
	}
	if !store.docs["ev1"].LastFetchedAt.Equal(t1) {
		t.Fatalf("last fetched = %v, want batch timestamp", store.docs["ev1"].LastFetchedAt)
	}
}

func TestMergeBatchFailureDoesNotAbortOthers(t *testing.T) {
	store := newMemStore()
	store.failGet = 1
	store.failIDs["ev3"] = true
	e := newEngine(store, 2)

	var events []models.OddsRecord
	for _, id := range []string{"ev1", "ev2", "ev3", "ev4", "ev5"} {
		events = append(events, event(id, bookmaker("pinnacle", market("h2h", t0, 2, 3, 3))))
	}
	rep := e.Merge(context.Background(), Batch{FetchedAt: t1, Events: events})

	if rep.Batches != 3 || rep.FailedBatches != 2 {
		t.Fatalf("batches = %d failed = %d", rep.Batches, rep.FailedBatches)
	}
	// primeiro lote falha inteiro na consulta, ev3 falha sozinho no segundo
	if rep.Failed != 3 || rep.Created != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if _, ok := store.docs["ev4"]; !ok {
		t.Fatal("sibling of failing document not written")
	}
	if _, ok := store.docs["ev5"]; !ok {
		t.Fatal("batch after failure not written")
	}
}

func TestMergeReportsUpdatedRecords(t *testing.T) {
	store := newMemStore()
	e := newEngine(store, 10)
	ctx := context.Background()

	e.Merge(ctx, Batch{FetchedAt: t0, Events: []models.OddsRecord{event("ev1", bookmaker("pinnacle", market("h2h", t0, 2.1, 3.4, 3.2)))}})
	rep := e.Merge(ctx, Batch{FetchedAt: t1, Events: []models.OddsRecord{event("ev1", bookmaker("pinnacle", market("h2h", t1, 2.0, 3.6, 3.2)))}})

	if rep.Updated != 1 || len(rep.Changed) != 1 || rep.Changed[0].Created {
		t.Fatalf("report = %+v", rep)
	}

	// mesmo conteúdo com novo fetch só atualiza o carimbo
	rep = e.Merge(ctx, Batch{FetchedAt: t1.Add(time.Minute), Events: []models.OddsRecord{event("ev1", bookmaker("pinnacle", market("h2h", t1, 2.0, 3.6, 3.2)))}})
	if rep.Unchanged != 1 || len(rep.Changed) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if !store.docs["ev1"].LastFetchedAt.Equal(t1.Add(time.Minute)) {
		t.Fatal("last fetched not refreshed")
	}
}
