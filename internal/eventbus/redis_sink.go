package eventbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

// RedisSink publica os envelopes no canal consumido pelo gateway realtime
type RedisSink struct {
	r       *redis.Client
	channel string
}

func NewRedisSink(r *redis.Client, channel string) *RedisSink {
	return &RedisSink{r: r, channel: channel}
}

func (s *RedisSink) Name() string { return "redis:" + s.channel }

func (s *RedisSink) Deliver(ctx context.Context, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.r.Publish(ctx, s.channel, payload).Err()
}
