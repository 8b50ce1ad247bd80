package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/clock"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Store é a persistência de documentos de odds usada pelo merge
type Store interface {
	GetOdds(ctx context.Context, eventIDs []string) (map[string]models.OddsRecord, error)
	UpsertOdds(ctx context.Context, rec models.OddsRecord) error
}

// Batch é o resultado de um ciclo de busca de um esporte
type Batch struct {
	Sport     string
	FetchedAt time.Time
	Events    []models.OddsRecord
}

// Change é um documento cujo conteúdo mudou (ou foi criado) no merge
type Change struct {
	Record  models.OddsRecord
	Created bool
}

// Report agrega o resultado de um merge
type Report struct {
	Created       int
	Updated       int
	Unchanged     int
	Failed        int
	Batches       int
	FailedBatches int
	Changed       []Change
}

type Engine struct {
	store   Store
	cfg     config.MergeConfig
	log     *zap.Logger
	metrics *metrics.Pipeline
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewEngine(store Store, cfg config.MergeConfig, log *zap.Logger, m *metrics.Pipeline) *Engine {
	if cfg.WriteBatchSize <= 0 {
		cfg.WriteBatchSize = 50
	}
	return &Engine{store: store, cfg: cfg, log: log.Named("merge"), metrics: m, sleep: clock.Sleep}
}

// Merge é o único ponto de entrada do merge de odds.
// Escritas seguem em lotes de WriteBatchSize com WritePause entre eles; falha de um
// documento não bloqueia os vizinhos e falha de um lote não aborta os seguintes.
func (e *Engine) Merge(ctx context.Context, b Batch) Report {
	var rep Report

	incoming := fold(b.Events, b.FetchedAt)
	for start := 0; start < len(incoming); start += e.cfg.WriteBatchSize {
		if start > 0 {
			if err := e.sleep(ctx, e.cfg.WritePause); err != nil {
				e.log.Warn("merge interrupted", zap.String("sport", b.Sport), zap.Error(err))
				rep.Failed += len(incoming) - start
				break
			}
		}
		end := start + e.cfg.WriteBatchSize
		if end > len(incoming) {
			end = len(incoming)
		}
		rep.Batches++
		e.writeBatch(ctx, b.Sport, incoming[start:end], &rep)
	}

	e.metrics.MergeWrites("created", rep.Created)
	e.metrics.MergeWrites("updated", rep.Updated)
	e.metrics.MergeWrites("unchanged", rep.Unchanged)
	e.metrics.MergeWrites("failed", rep.Failed)

	e.log.Info("merge done",
		zap.String("sport", b.Sport),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("failed", rep.Failed),
		zap.Int("batches", rep.Batches))
	return rep
}

func (e *Engine) writeBatch(ctx context.Context, sport string, batch []models.OddsRecord, rep *Report) {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.EventID
	}

	existing, err := e.store.GetOdds(ctx, ids)
	if err != nil {
		e.log.Error("merge batch lookup failed",
			zap.String("sport", sport), zap.Int("size", len(batch)), zap.Error(err))
		rep.Failed += len(batch)
		rep.FailedBatches++
		return
	}

	failed := 0
	for _, in := range batch {
		cur, found := existing[in.EventID]

		var merged models.OddsRecord
		if found {
			merged = MergeRecord(cur, in)
		} else {
			merged = MergeRecord(models.OddsRecord{}, in)
		}

		contentChanged := !found || !sameContent(Canonical(cur), merged)
		if found && !contentChanged && merged.LastFetchedAt.Equal(cur.LastFetchedAt) {
			rep.Unchanged++
			continue
		}

		if err := e.store.UpsertOdds(ctx, merged); err != nil {
			e.log.Warn("odds upsert failed", zap.String("event_id", in.EventID), zap.Error(err))
			failed++
			continue
		}

		switch {
		case !found:
			rep.Created++
		case contentChanged:
			rep.Updated++
		default:
			rep.Unchanged++
			continue
		}
		rep.Changed = append(rep.Changed, Change{Record: merged, Created: !found})
	}

	rep.Failed += failed
	if failed > 0 {
		rep.FailedBatches++
		e.log.Warn("merge batch had failures",
			zap.String("sport", sport), zap.Int("failed", failed), zap.Int("size", len(batch)))
	}
}

// fold consolida eventos repetidos no lote (um por chunk de mercados) mantendo a ordem de chegada
func fold(events []models.OddsRecord, fetchedAt time.Time) []models.OddsRecord {
	idx := make(map[string]int, len(events))
	out := make([]models.OddsRecord, 0, len(events))
	for _, ev := range events {
		if ev.EventID == "" {
			continue
		}
		ev.LastFetchedAt = fetchedAt
		if i, ok := idx[ev.EventID]; ok {
			out[i] = MergeRecord(out[i], ev)
			continue
		}
		idx[ev.EventID] = len(out)
		out = append(out, ev)
	}
	return out
}

// sameContent compara os documentos ignorando LastFetchedAt
func sameContent(a, b models.OddsRecord) bool {
	a.LastFetchedAt, b.LastFetchedAt = time.Time{}, time.Time{}
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}
