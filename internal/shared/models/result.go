package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TeamScore struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// CompletedResult vem da superfície de placares do fornecedor e é consumido pela liquidação
type CompletedResult struct {
	EventID      string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime *time.Time  `json:"commence_time,omitempty"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Completed    bool        `json:"completed"`
	Scores       []TeamScore `json:"scores"`
	LastUpdate   *time.Time  `json:"last_update,omitempty"`
}

// FinalScore devolve os placares de mandante e visitante, casando nomes sem diferenciar caixa
func (r CompletedResult) FinalScore() (home, away int, err error) {
	var foundHome, foundAway bool
	for _, s := range r.Scores {
		n, perr := strconv.Atoi(strings.TrimSpace(s.Score))
		if perr != nil {
			return 0, 0, fmt.Errorf("score %q for %s: %w", s.Score, s.Name, perr)
		}
		switch {
		case strings.EqualFold(s.Name, r.HomeTeam):
			home, foundHome = n, true
		case strings.EqualFold(s.Name, r.AwayTeam):
			away, foundAway = n, true
		}
	}
	if !foundHome || !foundAway {
		return 0, 0, fmt.Errorf("incomplete scores for event %s", r.EventID)
	}
	return home, away, nil
}
