package lifecycle

import (
	"time"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// DefaultGrace é a janela após o início em que a partida é considerada terminada
const DefaultGrace = 3 * time.Hour

// Next aplica um passo da máquina de estados temporal:
// upcoming→live quando now ≥ início; live→finished quando now ≥ início+grace.
// finished, cancelled e postponed nunca mudam pelo tempo.
func Next(status models.MatchStatus, start, now time.Time, grace time.Duration) (models.MatchStatus, bool) {
	switch status {
	case models.MatchUpcoming:
		if !now.Before(start) {
			return models.MatchLive, true
		}
	case models.MatchLive:
		if !now.Before(start.Add(grace)) {
			return models.MatchFinished, true
		}
	}
	return status, false
}

// Path devolve todos os passos devidos a partir de status (upcoming atrasado passa por live)
func Path(status models.MatchStatus, start, now time.Time, grace time.Duration) []models.MatchStatus {
	var out []models.MatchStatus
	for {
		next, ok := Next(status, start, now, grace)
		if !ok {
			return out
		}
		out = append(out, next)
		status = next
	}
}

// manualTargets lista de onde cada ação externa pode partir
var manualTargets = map[models.MatchStatus][]models.MatchStatus{
	models.MatchCancelled: {models.MatchUpcoming, models.MatchLive, models.MatchPostponed},
	models.MatchPostponed: {models.MatchUpcoming, models.MatchLive},
	models.MatchUpcoming:  {models.MatchPostponed},
}

func allowed(from, to models.MatchStatus) bool {
	for _, s := range manualTargets[to] {
		if s == from {
			return true
		}
	}
	return false
}
