package settlement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/markets"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

var ErrUnparseableSelection = errors.New("unparseable selection")

// ParseSelection converte o texto da seleção na escolha estruturada, pela gramática:
//
//	selection := side [line]
//	side      := home | away | draw | 1 | 2 | x | tie | over | under | nome-do-time
//	line      := ["+"|"-"] número   (obrigatória em handicap e totais)
//
// Em match winner o texto inteiro é o lado (nomes como "Schalke 04" não viram linha).
func ParseSelection(marketType, selection string) (models.Pick, error) {
	family := markets.Family(marketType)
	text := strings.Join(strings.Fields(selection), " ")
	if text == "" {
		return models.Pick{Family: family}, fmt.Errorf("%w: empty selection", ErrUnparseableSelection)
	}

	switch family {
	case models.FamilyMatchWinner:
		side, team := parseSide(text)
		switch side {
		case models.SideHome, models.SideAway, models.SideDraw, models.SideTeam:
			return models.Pick{Family: family, Side: side, Team: team}, nil
		}
		return models.Pick{Family: family}, fmt.Errorf("%w: %q is not a match winner side", ErrUnparseableSelection, text)

	case models.FamilyHandicap, models.FamilyTotals:
		sideText, line, ok := splitLine(text)
		if !ok {
			return models.Pick{Family: family}, fmt.Errorf("%w: %q has no line", ErrUnparseableSelection, text)
		}
		side, team := parseSide(sideText)
		if family == models.FamilyHandicap && (side == models.SideHome || side == models.SideAway || side == models.SideTeam) {
			return models.Pick{Family: family, Side: side, Team: team, Line: &line}, nil
		}
		if family == models.FamilyTotals && (side == models.SideOver || side == models.SideUnder) {
			return models.Pick{Family: family, Side: side, Line: &line}, nil
		}
		return models.Pick{Family: family}, fmt.Errorf("%w: side %q invalid for %s", ErrUnparseableSelection, sideText, family)
	}

	return models.Pick{Family: models.FamilyUnknown}, fmt.Errorf("%w: unsupported market %q", ErrUnparseableSelection, marketType)
}

func parseSide(text string) (models.Side, string) {
	switch strings.ToLower(text) {
	case "home", "1":
		return models.SideHome, ""
	case "away", "2":
		return models.SideAway, ""
	case "draw", "x", "tie":
		return models.SideDraw, ""
	case "over", "o":
		return models.SideOver, ""
	case "under", "u":
		return models.SideUnder, ""
	case "":
		return "", ""
	}
	return models.SideTeam, text
}

// splitLine separa o último token numérico com sinal opcional ("away +1.5" → "away", 1.5)
func splitLine(text string) (string, float64, bool) {
	i := strings.LastIndexByte(text, ' ')
	if i < 0 {
		return "", 0, false
	}
	raw := text[i+1:]
	line, err := strconv.ParseFloat(strings.TrimPrefix(raw, "+"), 64)
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSpace(text[:i]), line, true
}
