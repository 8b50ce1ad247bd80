package settlement

import (
	"fmt"
	"strings"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Verdict é o resultado da avaliação de uma aposta contra o placar final
type Verdict struct {
	Status models.WagerStatus
	// Tie: linha de handicap/total empatada exatamente; registrada como perda
	Tie    bool
	Reason string
}

// Evaluate decide won/lost para a escolha com placar home x away.
// Nunca devolve pending: o que não dá para resolver vira perda com motivo.
func Evaluate(p models.Pick, res models.CompletedResult, home, away int) Verdict {
	side := p.Side
	if side == models.SideTeam {
		resolved, ok := resolveTeam(p.Team, res.HomeTeam, res.AwayTeam)
		if !ok {
			return Verdict{Status: models.WagerLost, Reason: fmt.Sprintf("team %q not in %s vs %s", p.Team, res.HomeTeam, res.AwayTeam)}
		}
		side = resolved
	}

	switch p.Family {
	case models.FamilyMatchWinner:
		var won bool
		switch side {
		case models.SideHome:
			won = home > away
		case models.SideAway:
			won = away > home
		case models.SideDraw:
			won = home == away
		default:
			return lost("invalid side for match winner")
		}
		return outcome(won, false)

	case models.FamilyHandicap:
		if p.Line == nil {
			return lost("handicap without line")
		}
		own, opp := float64(home), float64(away)
		switch side {
		case models.SideHome:
		case models.SideAway:
			own, opp = opp, own
		default:
			return lost("invalid side for handicap")
		}
		adjusted := own + *p.Line
		return outcome(adjusted > opp, adjusted == opp)

	case models.FamilyTotals:
		if p.Line == nil {
			return lost("totals without line")
		}
		sum := float64(home + away)
		switch side {
		case models.SideOver:
			return outcome(sum > *p.Line, sum == *p.Line)
		case models.SideUnder:
			return outcome(sum < *p.Line, sum == *p.Line)
		}
		return lost("invalid side for totals")
	}

	return lost("unknown market family")
}

func outcome(won, tie bool) Verdict {
	if won {
		return Verdict{Status: models.WagerWon}
	}
	v := Verdict{Status: models.WagerLost, Tie: tie}
	if tie {
		v.Reason = "line tied"
	}
	return v
}

func lost(reason string) Verdict {
	return Verdict{Status: models.WagerLost, Reason: reason}
}

// resolveTeam casa o nome escolhido com um dos times (substring sem caixa, nos dois sentidos)
func resolveTeam(team, home, away string) (models.Side, bool) {
	t := strings.ToLower(strings.TrimSpace(team))
	if t == "" {
		return "", false
	}
	h, a := strings.ToLower(home), strings.ToLower(away)
	inHome := h != "" && (strings.Contains(h, t) || strings.Contains(t, h))
	inAway := a != "" && (strings.Contains(a, t) || strings.Contains(t, a))
	switch {
	case inHome && !inAway:
		return models.SideHome, true
	case inAway && !inHome:
		return models.SideAway, true
	}
	return "", false
}
