package topics

const (
	// Apostas (entrada vinda da API de apostas)
	BetPlaced    = "bet_placed"
	BetPlacedDLQ = "bet_placed_dlq"

	// Eventos do núcleo (saída durável)
	OddsUpdated           = "odds_updated"
	MatchLifecycleChanged = "match_lifecycle_changed"
	WagerSettled          = "wager_settled"

	// Canal Redis Pub/Sub consumido pelo realtime-gateway
	RealtimeChannel = "odds_core_realtime"
)
