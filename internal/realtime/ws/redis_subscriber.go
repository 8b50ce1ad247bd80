package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

// Subscriber escuta o canal Redis Pub/Sub do barramento e repassa os envelopes ao Hub
type Subscriber struct {
	R       *redis.Client
	Channel string
	Hub     *Hub
	Log     *zap.Logger
}

// Run bloqueia até o contexto terminar. Mensagens inválidas são descartadas com log.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.R.Subscribe(ctx, s.Channel)
	defer sub.Close()

	// confirma a inscrição antes de começar a ler
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Channel, err)
	}
	s.Log.Info("realtime subscriber started", zap.String("channel", s.Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis channel %s closed", s.Channel)
			}
			var env events.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.Log.Warn("ws subscriber unmarshal error", zap.Error(err))
				continue
			}
			if !env.Type.Valid() {
				s.Log.Warn("unknown event type on channel", zap.String("type", string(env.Type)))
				continue
			}
			s.Hub.Route(env)
		}
	}
}
