package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("match changed concurrently")
)

type Store interface {
	ListByStatus(ctx context.Context, statuses ...models.MatchStatus) ([]models.MatchRecord, error)
	Get(ctx context.Context, id string) (models.MatchRecord, error)
	Transition(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (bool, error)
}

type Publisher interface {
	Publish(e events.Event)
}

// Voider anula as apostas pendentes de uma partida cancelada
type Voider interface {
	VoidMatch(ctx context.Context, matchID, reason string) (int, error)
}

type Manager struct {
	store   Store
	bus     Publisher
	voider  Voider
	grace   time.Duration
	log     *zap.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
}

func NewManager(store Store, bus Publisher, grace time.Duration, log *zap.Logger, m *metrics.Pipeline) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{store: store, bus: bus, grace: grace, log: log.Named("lifecycle"), metrics: m, now: time.Now}
}

// SetVoider liga a anulação de apostas ao cancelamento (a liquidação depende do manager)
func (m *Manager) SetVoider(v Voider) { m.voider = v }

type SweepReport struct {
	Checked     int
	Transitions int
	Lost        int // outra ação mudou a partida antes do UPDATE condicional
}

// Sweep avança upcoming/live conforme o relógio. Cada passo é um UPDATE condicional
// (WHERE status = from), então um cancelamento concorrente sempre prevalece.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := m.now().UTC()

	matches, err := m.store.ListByStatus(ctx, models.MatchUpcoming, models.MatchLive)
	if err != nil {
		return rep, fmt.Errorf("list active matches: %w", err)
	}

	for _, match := range matches {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++

		from := match.Status
		for _, to := range Path(from, match.StartTime, now, m.grace) {
			ok, err := m.store.Transition(ctx, match.ID, from, to, now)
			if err != nil {
				m.log.Warn("transition failed",
					zap.String("match_id", match.ID), zap.String("from", string(from)),
					zap.String("to", string(to)), zap.Error(err))
				break
			}
			if !ok {
				rep.Lost++
				m.log.Info("match changed concurrently, skipping",
					zap.String("match_id", match.ID), zap.String("from", string(from)))
				break
			}
			rep.Transitions++
			m.announce(match, from, to, "schedule", now)
			from = to
		}
	}

	if rep.Transitions > 0 {
		m.log.Info("lifecycle sweep done",
			zap.Int("checked", rep.Checked), zap.Int("transitions", rep.Transitions), zap.Int("lost", rep.Lost))
	}
	return rep, nil
}

// Cancel é ação externa: upcoming/live/postponed → cancelled, anulando as apostas pendentes
func (m *Manager) Cancel(ctx context.Context, id, reason string) error {
	if err := m.manual(ctx, id, models.MatchCancelled, reason); err != nil {
		return err
	}
	if m.voider != nil {
		n, err := m.voider.VoidMatch(ctx, id, reason)
		if err != nil {
			return fmt.Errorf("void wagers for %s: %w", id, err)
		}
		m.log.Info("wagers voided for cancelled match", zap.String("match_id", id), zap.Int("wagers", n))
	}
	return nil
}

// Postpone é ação externa: upcoming/live → postponed
func (m *Manager) Postpone(ctx context.Context, id, reason string) error {
	return m.manual(ctx, id, models.MatchPostponed, reason)
}

// Resume devolve uma partida adiada para upcoming; o sweep volta a cuidar dela
func (m *Manager) Resume(ctx context.Context, id, reason string) error {
	return m.manual(ctx, id, models.MatchUpcoming, reason)
}

func (m *Manager) manual(ctx context.Context, id string, to models.MatchStatus, reason string) error {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		match, err := m.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load match %s: %w", id, err)
		}
		if !allowed(match.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, match.Status, to)
		}

		now := m.now().UTC()
		ok, err := m.store.Transition(ctx, id, match.Status, to, now)
		if err != nil {
			return err
		}
		if ok {
			m.announce(match, match.Status, to, reason, now)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrConflict, id)
}

func (m *Manager) announce(match models.MatchRecord, from, to models.MatchStatus, reason string, at time.Time) {
	m.metrics.Transition(string(from), string(to))
	ev := events.MatchLifecycleChanged{
		MatchID:    match.ID,
		ExternalID: match.ExternalID,
		SportKey:   match.SportKey,
		From:       string(from),
		To:         string(to),
		Reason:     reason,
		At:         at,
	}
	if to == models.MatchFinished {
		t := at
		ev.FinishedAt = &t
	}
	m.log.Info("match status changed",
		zap.String("match_id", match.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
