package merge

import (
	"sort"
	"time"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/markets"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// MergeRecord combina o documento persistido com o recém-buscado sem perder dados:
//   - mercado recebido com outcomes substitui o existente, salvo se for estritamente mais antigo;
//   - mercado recebido vazio nunca apaga outcomes existentes;
//   - bookmakers e mercados ausentes no payload são preservados.
//
// O resultado sai com chaves canônicas e ordenado por chave, então aplicar o mesmo
// payload duas vezes produz o mesmo documento.
func MergeRecord(existing, incoming models.OddsRecord) models.OddsRecord {
	out := Canonical(existing)

	if incoming.EventID != "" {
		out.EventID = incoming.EventID
	}
	if incoming.SportKey != "" {
		out.SportKey = incoming.SportKey
	}
	if incoming.SportTitle != "" {
		out.SportTitle = incoming.SportTitle
	}
	if incoming.HomeTeam != "" {
		out.HomeTeam = incoming.HomeTeam
	}
	if incoming.AwayTeam != "" {
		out.AwayTeam = incoming.AwayTeam
	}
	if !incoming.CommenceTime.IsZero() {
		out.CommenceTime = incoming.CommenceTime.UTC()
	}
	if incoming.LastFetchedAt.After(out.LastFetchedAt) {
		out.LastFetchedAt = incoming.LastFetchedAt.UTC()
	}

	idx := make(map[string]int, len(out.Bookmakers))
	for i, b := range out.Bookmakers {
		idx[b.Key] = i
	}
	for _, b := range incoming.Bookmakers {
		if b.Key == "" {
			continue
		}
		i, ok := idx[b.Key]
		if !ok {
			out.Bookmakers = append(out.Bookmakers, models.Bookmaker{Key: b.Key})
			i = len(out.Bookmakers) - 1
			idx[b.Key] = i
		}
		out.Bookmakers[i] = mergeBookmaker(out.Bookmakers[i], b)
	}

	out.Bookmakers = compact(out.Bookmakers)
	return out
}

func mergeBookmaker(cur, in models.Bookmaker) models.Bookmaker {
	if in.Title != "" {
		cur.Title = in.Title
	}
	if in.LastUpdate.After(cur.LastUpdate) {
		cur.LastUpdate = in.LastUpdate.UTC()
	}

	idx := make(map[string]int, len(cur.Markets))
	for i, m := range cur.Markets {
		idx[m.Key] = i
	}
	for _, m := range in.Markets {
		key := markets.Normalize(m.Key)
		if key == "" || len(m.Outcomes) == 0 {
			continue
		}
		next := models.Market{Key: key, LastUpdate: m.LastUpdate.UTC(), Outcomes: copyOutcomes(m.Outcomes)}

		i, ok := idx[key]
		if !ok {
			cur.Markets = append(cur.Markets, next)
			idx[key] = len(cur.Markets) - 1
			continue
		}
		// sem last_update de um dos lados não há como ordenar; o preço recebido prevalece
		prev := cur.Markets[i].LastUpdate
		if !next.LastUpdate.IsZero() && !prev.IsZero() && next.LastUpdate.Before(prev) {
			continue
		}
		cur.Markets[i] = next
	}
	return cur
}

// Canonical devolve uma cópia profunda com chaves normalizadas, horários em UTC e ordem estável.
// Mercados repetidos após a normalização são consolidados pela mesma regra do merge.
func Canonical(r models.OddsRecord) models.OddsRecord {
	out := r
	out.CommenceTime = utc(r.CommenceTime)
	out.LastFetchedAt = utc(r.LastFetchedAt)
	out.Bookmakers = make([]models.Bookmaker, 0, len(r.Bookmakers))

	idx := make(map[string]int, len(r.Bookmakers))
	for _, b := range r.Bookmakers {
		if b.Key == "" {
			continue
		}
		i, ok := idx[b.Key]
		if !ok {
			out.Bookmakers = append(out.Bookmakers, models.Bookmaker{Key: b.Key})
			i = len(out.Bookmakers) - 1
			idx[b.Key] = i
		}
		out.Bookmakers[i] = mergeBookmaker(out.Bookmakers[i], b)
	}
	out.Bookmakers = compact(out.Bookmakers)
	return out
}

// compact remove bookmakers sem mercados (só trouxeram mercados vazios) e ordena por chave
func compact(bs []models.Bookmaker) []models.Bookmaker {
	kept := bs[:0]
	for _, b := range bs {
		if len(b.Markets) > 0 {
			kept = append(kept, b)
		}
	}
	sortBookmakers(kept)
	return kept
}

func sortBookmakers(bs []models.Bookmaker) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].Key < bs[j].Key })
	for i := range bs {
		ms := bs[i].Markets
		sort.Slice(ms, func(a, b int) bool { return ms[a].Key < ms[b].Key })
	}
}

func copyOutcomes(in []models.Outcome) []models.Outcome {
	out := make([]models.Outcome, len(in))
	for i, o := range in {
		out[i] = o
		if o.Point != nil {
			p := *o.Point
			out[i].Point = &p
		}
	}
	return out
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
