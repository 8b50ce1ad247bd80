package events

// Evento publicado pela API de apostas no tópico "bet_placed"; consumido pela entrada de apostas
type BetPlaced struct {
	BetID       string  `json:"bet_id"`
	UserID      string  `json:"user_id"`
	EventID     string  `json:"event_id"` // id externo da partida (fornecedor)
	Market      string  `json:"market"`
	Selection   string  `json:"selection"`
	Stake       string  `json:"stake"`
	StakeCents  int64   `json:"stake_cents,omitempty"`
	OddValue    float64 `json:"odd_value"`
	ReservedRef string  `json:"reserved_ref"` // external_ref usado na reserva da carteira (betID)
	TsUnixMs    int64   `json:"ts_unix_ms"`
}
