package wagers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/internal/store"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

type memStore struct {
	wagers map[string]models.Wager
	err    error
	// failures faz as próximas N inserções falharem
	failures int
	calls    int
}

func (s *memStore) Insert(_ context.Context, w models.Wager) (bool, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return false, errors.New("db down")
	}
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.wagers[w.ID]; ok {
		return false, nil
	}
	s.wagers[w.ID] = w
	return true, nil
}

type memMatches map[string]models.MatchRecord

func (m memMatches) GetByExternalID(_ context.Context, ext string) (models.MatchRecord, error) {
	if r, ok := m[ext]; ok {
		return r, nil
	}
	return models.MatchRecord{}, store.ErrNotFound
}

// scriptedReader entrega as mensagens em ordem e cancela o contexto no fim
type scriptedReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func placement(id, market, selection string) events.BetPlaced {
	return events.BetPlaced{
		BetID: id, UserID: "u1", EventID: "ev1", Market: market, Selection: selection,
		Stake: "10.00", OddValue: 2.15, TsUnixMs: 1760000000000,
	}
}

func encode(t *testing.T, ev events.BetPlaced) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newConsumer() (*Consumer, *memStore) {
	st := &memStore{wagers: map[string]models.Wager{}}
	return &Consumer{
		Log:     zap.NewNop(),
		Store:   st,
		Matches: memMatches{"ev1": {ID: "m-1", ExternalID: "ev1"}},
	}, st
}

func TestBuild(t *testing.T) {
	w, err := Build(placement("b1", "Over Under", "over 2.5"))
	if err != nil {
		t.Fatal(err)
	}
	if w.MarketType != "totals" || w.Status != models.WagerPending {
		t.Fatalf("wager = %+v", w)
	}
	if !w.PotentialPayout.Equal(decimal.RequireFromString("21.50")) {
		t.Fatalf("payout = %s", w.PotentialPayout)
	}
	if w.Pick == nil || w.Pick.Side != models.SideOver || *w.Pick.Line != 2.5 {
		t.Fatalf("pick = %+v", w.Pick)
	}
	if w.CreatedAt.UnixMilli() != 1760000000000 {
		t.Fatalf("created_at = %s", w.CreatedAt)
	}
}

func TestBuildStakeFromCents(t *testing.T) {
	ev := placement("b1", "h2h", "home")
	ev.Stake, ev.StakeCents = "", 1250
	w, err := Build(ev)
	if err != nil {
		t.Fatal(err)
	}
	if w.Stake.StringFixed(2) != "12.50" {
		t.Fatalf("stake = %s", w.Stake)
	}
}

func TestBuildRejectsMalformed(t *testing.T) {
	tests := map[string]func(*events.BetPlaced){
		"no bet id":     func(e *events.BetPlaced) { e.BetID = "" },
		"no event":      func(e *events.BetPlaced) { e.EventID = "" },
		"bad stake":     func(e *events.BetPlaced) { e.Stake = "ten" },
		"zero stake":    func(e *events.BetPlaced) { e.Stake = "0" },
		"negative odds": func(e *events.BetPlaced) { e.OddValue = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			ev := placement("b1", "h2h", "home")
			mutate(&ev)
			if _, err := Build(ev); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestHandleResolvesMatchAndIsIdempotent(t *testing.T) {
	c, st := newConsumer()
	ctx := context.Background()
	msg := encode(t, placement("b1", "h2h", "away"))

	for i := 0; i < 2; i++ {
		if err := c.Handle(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(st.wagers) != 1 {
		t.Fatalf("wagers = %d", len(st.wagers))
	}
	if w := st.wagers["b1"]; w.MatchID != "m-1" || w.ExternalMatchID != "ev1" {
		t.Fatalf("wager = %+v", w)
	}
}

func TestHandleKeepsUnknownMatchAndUnparseableSelection(t *testing.T) {
	c, st := newConsumer()
	ev := placement("b2", "spreads", "home by plenty")
	ev.EventID = "ev-unknown"

	if err := c.Handle(context.Background(), encode(t, ev)); err != nil {
		t.Fatal(err)
	}
	w := st.wagers["b2"]
	if w.MatchID != "" || w.ExternalMatchID != "ev-unknown" || w.Pick != nil {
		t.Fatalf("wager = %+v", w)
	}
}

type dlqWriter struct{ msgs []kafka.Message }

func (w *dlqWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestRunSkipsMalformedAndContinues(t *testing.T) {
	c, st := newConsumer()
	dlq := &dlqWriter{}
	c.DLQ, c.DLQTopic = dlq, "bet_placed_dlq"
	ctx, cancel := context.WithCancel(context.Background())
	c.Reader = &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Value: []byte("{not json")},
		{Value: encode(t, placement("b1", "h2h", "home"))},
		{Value: encode(t, events.BetPlaced{BetID: "b2"})},
		{Value: encode(t, placement("b3", "totals", "under 3.5"))},
	}}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err = %v", err)
	}
	if len(st.wagers) != 2 {
		t.Fatalf("wagers = %v", st.wagers)
	}
	if _, ok := st.wagers["b3"]; !ok {
		t.Fatal("b3 not stored")
	}
	if len(dlq.msgs) != 2 || dlq.msgs[0].Topic != "bet_placed_dlq" || string(dlq.msgs[0].Value) != "{not json" {
		t.Fatalf("dlq = %+v", dlq.msgs)
	}
	if h := dlq.msgs[1].Headers; len(h) != 2 || h[0].Key != "dlq_reason" {
		t.Fatalf("headers = %+v", h)
	}
}

func TestHandleSurfacesStoreErrors(t *testing.T) {
	c, st := newConsumer()
	st.err = errors.New("db down")
	err := c.Handle(context.Background(), encode(t, placement("b1", "h2h", "home")))
	if err == nil || errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	c, st := newConsumer()
	c.retryDelay = time.Millisecond
	st.failures = 2
	dlq := &dlqWriter{}
	c.DLQ, c.DLQTopic = dlq, "bet_placed_dlq"
	ctx, cancel := context.WithCancel(context.Background())
	c.Reader = &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Value: encode(t, placement("b1", "h2h", "home"))},
	}}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err = %v", err)
	}
	if st.calls != 3 {
		t.Fatalf("insert calls = %d, want 3", st.calls)
	}
	if _, ok := st.wagers["b1"]; !ok || len(dlq.msgs) != 0 {
		t.Fatalf("wagers = %v dlq = %+v", st.wagers, dlq.msgs)
	}
}

func TestRunDeadLettersAfterRetries(t *testing.T) {
	c, st := newConsumer()
	c.retryDelay = time.Millisecond
	st.err = errors.New("db down")
	dlq := &dlqWriter{}
	c.DLQ, c.DLQTopic = dlq, "bet_placed_dlq"
	ctx, cancel := context.WithCancel(context.Background())
	c.Reader = &scriptedReader{cancel: cancel, msgs: []kafka.Message{
		{Topic: "bet_placed", Key: []byte("b1"), Value: encode(t, placement("b1", "h2h", "home"))},
	}}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err = %v", err)
	}
	if st.calls != 1+intakeRetries {
		t.Fatalf("insert calls = %d, want %d", st.calls, 1+intakeRetries)
	}
	if len(dlq.msgs) != 1 || string(dlq.msgs[0].Key) != "b1" {
		t.Fatalf("dlq = %+v", dlq.msgs)
	}
	h := dlq.msgs[0].Headers
	if len(h) != 2 || h[0].Key != "dlq_reason" || h[1].Key != "source_topic" || string(h[1].Value) != "bet_placed" {
		t.Fatalf("headers = %+v", h)
	}
}
