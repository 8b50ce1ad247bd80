package feed

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/markets"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// degrade decide o que devolver quando um chunk esgota as tentativas
func (c *Client) degrade(sport string, chunk []string, err error) []models.OddsRecord {
	if !canFallback(err) {
		c.log.Warn("odds chunk dropped", zap.String("sport", sport), zap.Strings("markets", chunk), zap.Error(err))
		return nil
	}

	snap := c.loadSnapshot()
	events, ok := snap[sport]
	if !ok {
		c.log.Error("odds fetch failed, no fallback snapshot",
			zap.String("sport", sport), zap.Strings("markets", chunk), zap.Error(err))
		return nil
	}

	out := FilterMarkets(events, chunk)
	c.metrics.FeedRequest(sport, "fallback")
	c.log.Warn("odds fetch failed, serving fallback snapshot",
		zap.String("sport", sport),
		zap.Strings("markets", chunk),
		zap.Int("events", len(out)),
		zap.Error(err))
	return out
}

// loadSnapshot lê uma única vez o arquivo JSON {sport: [evento...]}
func (c *Client) loadSnapshot() map[string][]models.OddsRecord {
	c.snapOnce.Do(func() {
		path := c.cfg.FallbackSnapshotPath
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			c.log.Warn("fallback snapshot unavailable", zap.String("path", path), zap.Error(err))
			return
		}
		var snap map[string][]models.OddsRecord
		if err := json.Unmarshal(data, &snap); err != nil {
			c.log.Warn("invalid fallback snapshot", zap.String("path", path), zap.Error(err))
			return
		}
		c.snapshot = snap
	})
	return c.snapshot
}

// FilterMarkets copia os eventos mantendo apenas os mercados pedidos no chunk
func FilterMarkets(events []models.OddsRecord, keys []string) []models.OddsRecord {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[markets.Normalize(k)] = struct{}{}
	}

	out := make([]models.OddsRecord, 0, len(events))
	for _, ev := range events {
		cp := ev
		cp.Bookmakers = nil
		for _, b := range ev.Bookmakers {
			bm := b
			bm.Markets = nil
			for _, m := range b.Markets {
				if _, ok := want[markets.Normalize(m.Key)]; ok {
					bm.Markets = append(bm.Markets, m)
				}
			}
			if len(bm.Markets) > 0 {
				cp.Bookmakers = append(cp.Bookmakers, bm)
			}
		}
		out = append(out, cp)
	}
	return out
}
