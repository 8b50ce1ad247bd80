package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/feed"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Feed é um cache read-through de TTL curto na frente do feed client.
// Redis indisponível nunca bloqueia: a chamada segue direto para o fornecedor.
type Feed struct {
	next feed.Source
	r    *redis.Client
	cfg  config.CacheConfig
	log  *zap.Logger
}

var _ feed.Source = (*Feed)(nil)

func NewFeed(next feed.Source, r *redis.Client, cfg config.CacheConfig, log *zap.Logger) *Feed {
	if cfg.Prefix == "" {
		cfg.Prefix = "oddscore"
	}
	return &Feed{next: next, r: r, cfg: cfg, log: log.Named("feed-cache")}
}

func (f *Feed) oddsKey(sport string, markets []string) string {
	ms := append([]string(nil), markets...)
	sort.Strings(ms)
	return fmt.Sprintf("%s:feed:odds:%s:%s", f.cfg.Prefix, sport, strings.Join(ms, ","))
}

func (f *Feed) scoresKey(sport string, eventIDs []string) string {
	ids := append([]string(nil), eventIDs...)
	sort.Strings(ids)
	sum := sha1.Sum([]byte(strings.Join(ids, ",")))
	return fmt.Sprintf("%s:feed:scores:%s:%s", f.cfg.Prefix, sport, hex.EncodeToString(sum[:8]))
}

func (f *Feed) FetchOdds(ctx context.Context, sport string, markets []string) []models.OddsRecord {
	key := f.oddsKey(sport, markets)

	var cached []models.OddsRecord
	if f.get(ctx, key, &cached) {
		return cached
	}

	out := f.next.FetchOdds(ctx, sport, markets)
	if len(out) > 0 {
		f.set(ctx, key, out, f.cfg.FeedTTL)
	}
	return out
}

func (f *Feed) FetchScores(ctx context.Context, sport string, eventIDs []string) []models.CompletedResult {
	key := f.scoresKey(sport, eventIDs)

	var cached []models.CompletedResult
	if f.get(ctx, key, &cached) {
		return cached
	}

	out := f.next.FetchScores(ctx, sport, eventIDs)
	if len(out) > 0 {
		f.set(ctx, key, out, f.cfg.ScoresTTL)
	}
	return out
}

func (f *Feed) get(ctx context.Context, key string, dst any) bool {
	b, err := f.r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		f.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		f.log.Warn("cache entry corrupted", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (f *Feed) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := f.r.Set(ctx, key, b, ttl).Err(); err != nil {
		f.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
