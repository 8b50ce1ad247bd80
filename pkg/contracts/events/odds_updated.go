package events

import "time"

// Evento publicado quando o merge altera (ou cria) o documento de odds de um evento
type OddsUpdated struct {
	EventID    string    `json:"event_id"`
	MatchID    string    `json:"match_id,omitempty"`
	SportKey   string    `json:"sport_key"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	Created    bool      `json:"created"`
	Bookmakers int       `json:"bookmakers"`
	BestHome   *float64  `json:"best_home,omitempty"`
	BestDraw   *float64  `json:"best_draw,omitempty"`
	BestAway   *float64  `json:"best_away,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

func (OddsUpdated) Type() Type    { return TypeOddsUpdated }
func (e OddsUpdated) Key() string { return e.EventID }
