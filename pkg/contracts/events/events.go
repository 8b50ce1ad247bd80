package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type é o conjunto fechado de eventos publicados pelo núcleo
type Type string

const (
	TypeOddsUpdated           Type = "odds.updated"
	TypeMatchLifecycleChanged Type = "match.lifecycle_changed"
	TypeWagerSettled          Type = "wager.settled"
)

// Types lista todos os tipos conhecidos
func Types() []Type {
	return []Type{TypeOddsUpdated, TypeMatchLifecycleChanged, TypeWagerSettled}
}

func (t Type) Valid() bool {
	switch t {
	case TypeOddsUpdated, TypeMatchLifecycleChanged, TypeWagerSettled:
		return true
	}
	return false
}

// Event é implementado por cada payload tipado.
// Key define a partição no Kafka e o roteamento de grupos no realtime.
type Event interface {
	Type() Type
	Key() string
}

// Envelope é o formato no fio (Redis Pub/Sub e Kafka)
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Key        string          `json:"key,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap serializa o evento tipado dentro de um envelope
func Wrap(e Event, at time.Time) (Envelope, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       e.Type(),
		Key:        e.Key(),
		OccurredAt: at.UTC(),
		Payload:    b,
	}, nil
}

// Decode devolve o payload tipado do envelope
func (env Envelope) Decode() (Event, error) {
	var e Event
	switch env.Type {
	case TypeOddsUpdated:
		e = &OddsUpdated{}
	case TypeMatchLifecycleChanged:
		e = &MatchLifecycleChanged{}
	case TypeWagerSettled:
		e = &WagerSettled{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return e, nil
}
