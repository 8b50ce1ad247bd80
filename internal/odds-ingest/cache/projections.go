package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Projections guarda a projeção de odds (melhor h2h) por partida, lida pelo gateway realtime
type Projections struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewProjections(r *redis.Client, prefix string, ttl time.Duration) *Projections {
	if prefix == "" {
		prefix = "oddscore"
	}
	return &Projections{R: r, Prefix: prefix, TTL: ttl}
}

func (p *Projections) key(matchID string) string { return p.Prefix + ":odds:match:" + matchID }

func (p *Projections) Set(ctx context.Context, matchID string, proj models.OddsProjection) error {
	b, err := json.Marshal(proj)
	if err != nil {
		return err
	}
	return p.R.Set(ctx, p.key(matchID), b, p.TTL).Err()
}

// Get devolve (nil, nil) quando não há projeção em cache
func (p *Projections) Get(ctx context.Context, matchID string) (*models.OddsProjection, error) {
	b, err := p.R.Get(ctx, p.key(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out models.OddsProjection
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
