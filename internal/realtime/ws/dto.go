package ws

import (
	"encoding/json"

	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Group: obrigatório para subscribe/unsubscribe (ex.: "match:123", "live", "user:42")
type ClientMsg struct {
	Type  string `json:"type"`
	Group string `json:"group"`
}

// ServerMsg é o que o cliente recebe: eventos roteados, snapshot, confirmações e erros
type ServerMsg struct {
	Type  string           `json:"type"`
	Group string           `json:"group,omitempty"`
	Event *events.Envelope `json:"event,omitempty"`
	Data  json.RawMessage  `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
}
