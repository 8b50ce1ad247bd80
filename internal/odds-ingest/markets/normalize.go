package markets

import (
	"strings"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Chaves canônicas de mercado
const (
	H2H              = "h2h"
	Spreads          = "spreads"
	Totals           = "totals"
	BothTeamsToScore = "both_teams_to_score"
)

var synonyms = map[string]string{
	"h2h":          H2H,
	"moneyline":    H2H,
	"money_line":   H2H,
	"ml":           H2H,
	"match_winner": H2H,
	"1x2":          H2H,
	"match_odds":   H2H,
	"winner":       H2H,

	"spreads":        Spreads,
	"spread":         Spreads,
	"handicap":       Spreads,
	"asian_handicap": Spreads,
	"point_spread":   Spreads,
	"ah":             Spreads,

	"totals":       Totals,
	"total":        Totals,
	"over_under":   Totals,
	"points_total": Totals,
	"total_points": Totals,
	"ou":           Totals,

	"btts":                BothTeamsToScore,
	"both_teams_to_score": BothTeamsToScore,
	"both_teams_score":    BothTeamsToScore,
}

// Variantes de exchange removidas antes do mapeamento de sinônimos
var (
	strippedSuffixes = []string{"_lay", "_exchange"}
	strippedPrefixes = []string{"lay_", "exchange_"}
)

// Normalize converte a chave bruta do fornecedor na chave canônica.
// Função pura e total: chaves desconhecidas voltam em minúsculas com espaços colapsados.
func Normalize(raw string) string {
	key := collapse(strings.ToLower(strings.TrimSpace(raw)))
	if key == "" {
		return ""
	}

	base := key
	for changed := true; changed; {
		changed = false
		for _, s := range strippedSuffixes {
			if len(base) > len(s) && strings.HasSuffix(base, s) {
				base, changed = strings.TrimSuffix(base, s), true
			}
		}
		for _, p := range strippedPrefixes {
			if len(base) > len(p) && strings.HasPrefix(base, p) {
				base, changed = strings.TrimPrefix(base, p), true
			}
		}
	}

	if c, ok := synonyms[base]; ok {
		return c
	}
	return key
}

// collapse troca qualquer sequência de espaços/hífens por um único "_"
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_' {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	return b.String()
}

// Family devolve a família de liquidação para uma chave (canônica ou não)
func Family(key string) models.MarketFamily {
	switch Normalize(key) {
	case H2H:
		return models.FamilyMatchWinner
	case Spreads:
		return models.FamilyHandicap
	case Totals:
		return models.FamilyTotals
	default:
		return models.FamilyUnknown
	}
}

// NormalizeAll normaliza e remove duplicadas preservando a ordem de chegada
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		k := Normalize(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
