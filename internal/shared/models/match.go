package models

import (
	"strings"
	"time"
)

type MatchStatus string

const (
	MatchUpcoming  MatchStatus = "upcoming"
	MatchLive      MatchStatus = "live"
	MatchFinished  MatchStatus = "finished"
	MatchCancelled MatchStatus = "cancelled"
	MatchPostponed MatchStatus = "postponed"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchUpcoming, MatchLive, MatchFinished, MatchCancelled, MatchPostponed:
		return true
	}
	return false
}

// OddsProjection é a visão resumida (melhor preço h2h entre bookmakers) exibida com a partida
type OddsProjection struct {
	Home       *float64  `json:"home,omitempty"`
	Draw       *float64  `json:"draw,omitempty"`
	Away       *float64  `json:"away,omitempty"`
	Bookmakers int       `json:"bookmakers"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MatchRecord é a partida canônica; ExternalID aponta para o evento do fornecedor
type MatchRecord struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id,omitempty"`
	SportKey   string          `json:"sport_key"`
	HomeTeam   string          `json:"home_team"`
	AwayTeam   string          `json:"away_team"`
	StartTime  time.Time       `json:"start_time"`
	Status     MatchStatus     `json:"status"`
	HomeScore  *int            `json:"home_score,omitempty"`
	AwayScore  *int            `json:"away_score,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Odds       *OddsProjection `json:"odds,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ProjectOdds calcula a melhor cotação h2h por lado entre todos os bookmakers do registro
func ProjectOdds(rec OddsRecord, at time.Time) *OddsProjection {
	proj := &OddsProjection{UpdatedAt: at}
	best := func(cur *float64, price float64) *float64 {
		if cur == nil || price > *cur {
			p := price
			return &p
		}
		return cur
	}
	for _, b := range rec.Bookmakers {
		m, ok := b.Market("h2h")
		if !ok || len(m.Outcomes) == 0 {
			continue
		}
		proj.Bookmakers++
		for _, o := range m.Outcomes {
			switch {
			case strings.EqualFold(o.Name, rec.HomeTeam):
				proj.Home = best(proj.Home, o.Price)
			case strings.EqualFold(o.Name, rec.AwayTeam):
				proj.Away = best(proj.Away, o.Price)
			case strings.EqualFold(o.Name, "draw"):
				proj.Draw = best(proj.Draw, o.Price)
			}
		}
	}
	if proj.Bookmakers == 0 {
		return nil
	}
	return proj
}
