package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// OddsRepo guarda o documento completo de odds por evento do fornecedor
type OddsRepo struct {
	db *sql.DB
}

func NewOddsRepo(db *sql.DB) *OddsRepo { return &OddsRepo{db: db} }

// GetOdds carrega os documentos existentes para os ids informados
func (r *OddsRepo) GetOdds(ctx context.Context, eventIDs []string) (map[string]models.OddsRecord, error) {
	out := make(map[string]models.OddsRecord, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, sport_key, sport_title, home_team, away_team, commence_time, bookmakers, last_fetched_at
		FROM odds_records
		WHERE event_id = ANY($1)`, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("query odds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.OddsRecord
		var raw []byte
		if err := rows.Scan(&rec.EventID, &rec.SportKey, &rec.SportTitle, &rec.HomeTeam, &rec.AwayTeam,
			&rec.CommenceTime, &raw, &rec.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("scan odds: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Bookmakers); err != nil {
			return nil, fmt.Errorf("decode bookmakers for %s: %w", rec.EventID, err)
		}
		rec.CommenceTime = rec.CommenceTime.UTC()
		rec.LastFetchedAt = rec.LastFetchedAt.UTC()
		out[rec.EventID] = rec
	}
	return out, rows.Err()
}

// UpsertOdds grava o documento já mesclado (ON CONFLICT por event_id)
func (r *OddsRepo) UpsertOdds(ctx context.Context, rec models.OddsRecord) error {
	bookmakers, err := json.Marshal(rec.Bookmakers)
	if err != nil {
		return fmt.Errorf("encode bookmakers: %w", err)
	}

	const q = `
		INSERT INTO odds_records
		  (event_id, sport_key, sport_title, home_team, away_team, commence_time, bookmakers, last_fetched_at, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (event_id) DO UPDATE SET
		  sport_key       = EXCLUDED.sport_key,
		  sport_title     = EXCLUDED.sport_title,
		  home_team       = EXCLUDED.home_team,
		  away_team       = EXCLUDED.away_team,
		  commence_time   = EXCLUDED.commence_time,
		  bookmakers      = EXCLUDED.bookmakers,
		  last_fetched_at = EXCLUDED.last_fetched_at,
		  updated_at      = NOW()
	`
	_, err = r.db.ExecContext(ctx, q,
		rec.EventID, rec.SportKey, rec.SportTitle, rec.HomeTeam, rec.AwayTeam,
		rec.CommenceTime, bookmakers, rec.LastFetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert odds %s: %w", rec.EventID, err)
	}
	return nil
}
