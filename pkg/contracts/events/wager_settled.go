package events

import "time"

// Evento emitido por aposta que sai de pending para um status final
type WagerSettled struct {
	WagerID         string    `json:"wager_id"`
	UserID          string    `json:"user_id"`
	MatchID         string    `json:"match_id,omitempty"`
	ExternalMatchID string    `json:"external_match_id,omitempty"`
	Status          string    `json:"status"`
	Stake           string    `json:"stake"`
	Payout          string    `json:"payout"`
	Tie             bool      `json:"tie,omitempty"` // linha empatada exatamente (tratada como perda)
	Reason          string    `json:"reason,omitempty"`
	SettledAt       time.Time `json:"settled_at"`
}

func (WagerSettled) Type() Type    { return TypeWagerSettled }
func (e WagerSettled) Key() string { return e.UserID }
