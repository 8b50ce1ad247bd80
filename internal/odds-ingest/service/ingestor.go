package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/feed"
	"github.com/radieske/sports-odds-core/internal/odds-ingest/merge"
	"github.com/radieske/sports-odds-core/internal/scheduler"
	"github.com/radieske/sports-odds-core/internal/shared/clock"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

// Merger aplica um lote buscado aos documentos persistidos
type Merger interface {
	Merge(ctx context.Context, b merge.Batch) merge.Report
}

// MatchMirror espelha o documento de odds na partida canônica
type MatchMirror interface {
	MirrorFromOdds(ctx context.Context, rec models.OddsRecord, proj *models.OddsProjection) (models.MatchRecord, bool, error)
}

// ProjectionCache guarda a projeção de odds por partida para leitura rápida
type ProjectionCache interface {
	Set(ctx context.Context, matchID string, proj models.OddsProjection) error
}

type Publisher interface {
	Publish(e events.Event)
}

// Ingestor executa o ciclo de ingestão de um esporte: busca, merge, espelhamento e publicação
type Ingestor struct {
	source  feed.Source
	merger  Merger
	mirror  MatchMirror
	cache   ProjectionCache
	bus     Publisher
	cfg     config.FeedConfig
	log     *zap.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	// eventos cujo espelhamento falhou; reprocessados no próximo ciclo mesmo sem mudança de odds
	mu         sync.Mutex
	unmirrored map[string]struct{}
}

func NewIngestor(source feed.Source, merger Merger, mirror MatchMirror, cache ProjectionCache, bus Publisher,
	cfg config.FeedConfig, log *zap.Logger, m *metrics.Pipeline) *Ingestor {
	return &Ingestor{
		source:  source,
		merger:  merger,
		mirror:  mirror,
		cache:   cache,
		bus:     bus,
		cfg:     cfg,
		log:     log.Named("ingest"),
		metrics: m,
		now:     time.Now,
		sleep:   clock.Sleep,

		unmirrored: map[string]struct{}{},
	}
}

// CycleReport resume um ciclo de um esporte
type CycleReport struct {
	Sport     string
	Fetched   int
	Merge     merge.Report
	Mirrored  int
	Inserted  int
	Published int
}

// RunSport busca as odds do esporte e aplica o merge. Falhas de espelhamento ou de cache
// de uma partida são registradas e não interrompem as demais.
func (i *Ingestor) RunSport(ctx context.Context, sport string) (CycleReport, error) {
	rep := CycleReport{Sport: sport}
	at := i.now().UTC()

	records := i.source.FetchOdds(ctx, sport, i.cfg.Markets)
	rep.Fetched = len(records)
	i.metrics.IngestedEvents(sport, len(records))
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if len(records) == 0 {
		i.log.Info("no events fetched", zap.String("sport", sport))
		return rep, nil
	}

	rep.Merge = i.merger.Merge(ctx, merge.Batch{Sport: sport, FetchedAt: at, Events: records})

	changed := make(map[string]struct{}, len(rep.Merge.Changed))
	for _, ch := range rep.Merge.Changed {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		changed[ch.Record.EventID] = struct{}{}
		i.apply(ctx, ch, at, &rep)
	}
	for _, rec := range records {
		if _, ok := changed[rec.EventID]; ok || !i.needsMirror(rec.EventID) {
			continue
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		i.apply(ctx, merge.Change{Record: rec}, at, &rep)
	}

	i.log.Info("ingest cycle done",
		zap.String("sport", sport),
		zap.Int("fetched", rep.Fetched),
		zap.Int("created", rep.Merge.Created),
		zap.Int("updated", rep.Merge.Updated),
		zap.Int("failed", rep.Merge.Failed),
		zap.Int("matches_inserted", rep.Inserted))

	if rep.Merge.Failed > 0 && rep.Merge.Created+rep.Merge.Updated+rep.Merge.Unchanged == 0 {
		return rep, fmt.Errorf("ingest %s: all %d writes failed", sport, rep.Merge.Failed)
	}
	return rep, nil
}

func (i *Ingestor) apply(ctx context.Context, ch merge.Change, at time.Time, rep *CycleReport) {
	rec := ch.Record
	proj := models.ProjectOdds(rec, at)

	match, inserted, err := i.mirror.MirrorFromOdds(ctx, rec, proj)
	if err != nil {
		i.log.Warn("match mirror failed", zap.String("event_id", rec.EventID), zap.Error(err))
		i.markMirror(rec.EventID, false)
		return
	}
	i.markMirror(rec.EventID, true)
	rep.Mirrored++
	if inserted {
		rep.Inserted++
	}

	ev := events.OddsUpdated{
		EventID:   rec.EventID,
		MatchID:   match.ID,
		SportKey:  rec.SportKey,
		HomeTeam:  rec.HomeTeam,
		AwayTeam:  rec.AwayTeam,
		Created:   ch.Created,
		FetchedAt: at,
	}
	if proj != nil {
		if i.cache != nil {
			if err := i.cache.Set(ctx, match.ID, *proj); err != nil {
				i.log.Warn("projection cache write failed", zap.String("match_id", match.ID), zap.Error(err))
			}
		}
		ev.Bookmakers = proj.Bookmakers
		ev.BestHome, ev.BestDraw, ev.BestAway = proj.Home, proj.Draw, proj.Away
	}
	i.bus.Publish(ev)
	rep.Published++
}

func (i *Ingestor) needsMirror(eventID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.unmirrored[eventID]
	return ok
}

func (i *Ingestor) markMirror(eventID string, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ok {
		delete(i.unmirrored, eventID)
	} else {
		i.unmirrored[eventID] = struct{}{}
	}
}

// RunAll percorre todos os esportes configurados em sequência, com SportDelay entre eles
func (i *Ingestor) RunAll(ctx context.Context) error {
	var errs []error
	for n, sport := range i.cfg.Sports {
		if n > 0 {
			if err := i.sleep(ctx, i.cfg.SportDelay); err != nil {
				return err
			}
		}
		if _, err := i.RunSport(ctx, sport); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TaskName é o nome da tarefa agendada de um esporte
func TaskName(sport string) string { return "ingest:" + sport }

// Tasks devolve uma tarefa independente por esporte. O início de cada esporte é
// deslocado em SportDelay para espalhar as requisições ao fornecedor.
func (i *Ingestor) Tasks() []scheduler.Task {
	tasks := make([]scheduler.Task, 0, len(i.cfg.Sports))
	for n, sport := range i.cfg.Sports {
		sport, offset := sport, time.Duration(n)*i.cfg.SportDelay
		tasks = append(tasks, scheduler.Task{
			Name:     TaskName(sport),
			Schedule: i.cfg.IngestSchedule,
			Timeout:  i.cfg.IngestTimeout,
			Run: func(ctx context.Context) error {
				if err := i.sleep(ctx, offset); err != nil {
					return err
				}
				_, err := i.RunSport(ctx, sport)
				return err
			},
		})
	}
	return tasks
}
