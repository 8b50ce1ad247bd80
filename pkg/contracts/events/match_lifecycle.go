package events

import "time"

// Evento emitido a cada mudança de status de uma partida (sweep ou ação externa)
type MatchLifecycleChanged struct {
	MatchID    string     `json:"match_id"`
	ExternalID string     `json:"external_id,omitempty"`
	SportKey   string     `json:"sport_key"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Reason     string     `json:"reason,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	At         time.Time  `json:"at"`
}

func (MatchLifecycleChanged) Type() Type    { return TypeMatchLifecycleChanged }
func (e MatchLifecycleChanged) Key() string { return e.MatchID }
