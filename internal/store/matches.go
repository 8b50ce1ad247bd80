package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// MatchRepo mantém as partidas canônicas
type MatchRepo struct {
	db *sql.DB
}

func NewMatchRepo(db *sql.DB) *MatchRepo { return &MatchRepo{db: db} }

const matchColumns = `id, COALESCE(external_id, ''), sport_key, home_team, away_team, start_time, status,
	home_score, away_score, finished_at, odds_projection, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(s rowScanner) (models.MatchRecord, error) {
	var m models.MatchRecord
	var status string
	var home, away sql.NullInt64
	var finished sql.NullTime
	var proj []byte
	if err := s.Scan(&m.ID, &m.ExternalID, &m.SportKey, &m.HomeTeam, &m.AwayTeam, &m.StartTime, &status,
		&home, &away, &finished, &proj, &m.UpdatedAt); err != nil {
		return m, err
	}
	m.Status = models.MatchStatus(status)
	m.StartTime = m.StartTime.UTC()
	if home.Valid {
		h := int(home.Int64)
		m.HomeScore = &h
	}
	if away.Valid {
		a := int(away.Int64)
		m.AwayScore = &a
	}
	if finished.Valid {
		t := finished.Time.UTC()
		m.FinishedAt = &t
	}
	if len(proj) > 0 {
		var p models.OddsProjection
		if err := json.Unmarshal(proj, &p); err == nil {
			m.Odds = &p
		}
	}
	return m, nil
}

// MirrorFromOdds cria a partida para um evento desconhecido ou atualiza times, horário e
// projeção de odds de uma existente. O status nunca é alterado aqui.
func (r *MatchRepo) MirrorFromOdds(ctx context.Context, rec models.OddsRecord, proj *models.OddsProjection) (models.MatchRecord, bool, error) {
	var projJSON []byte
	if proj != nil {
		b, err := json.Marshal(proj)
		if err != nil {
			return models.MatchRecord{}, false, fmt.Errorf("encode projection: %w", err)
		}
		projJSON = b
	}

	const q = `
		INSERT INTO matches
		  (id, external_id, sport_key, home_team, away_team, start_time, status, odds_projection, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,'upcoming',$7,NOW())
		ON CONFLICT (external_id) DO UPDATE SET
		  sport_key       = EXCLUDED.sport_key,
		  home_team       = EXCLUDED.home_team,
		  away_team       = EXCLUDED.away_team,
		  start_time      = EXCLUDED.start_time,
		  odds_projection = COALESCE(EXCLUDED.odds_projection, matches.odds_projection),
		  updated_at      = NOW()
		RETURNING ` + matchColumns + `, (xmax = 0) AS inserted`

	row := r.db.QueryRowContext(ctx, q,
		uuid.NewString(), rec.EventID, rec.SportKey, rec.HomeTeam, rec.AwayTeam, rec.CommenceTime, projJSON)

	var inserted bool
	m, err := scanMatch(scannerFunc(func(dest ...any) error {
		return row.Scan(append(dest, &inserted)...)
	}))
	if err != nil {
		return models.MatchRecord{}, false, fmt.Errorf("mirror match %s: %w", rec.EventID, err)
	}
	return m, inserted, nil
}

type scannerFunc func(dest ...any) error

func (f scannerFunc) Scan(dest ...any) error { return f(dest...) }

func (r *MatchRepo) Get(ctx context.Context, id string) (models.MatchRecord, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

func (r *MatchRepo) GetByExternalID(ctx context.Context, externalID string) (models.MatchRecord, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE external_id=$1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

// ListByStatus lista partidas nos status informados, ordenadas pelo início
func (r *MatchRepo) ListByStatus(ctx context.Context, statuses ...models.MatchStatus) ([]models.MatchRecord, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE status = ANY($1) ORDER BY start_time`, pq.Array(ss))
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Transition aplica from→to somente se a partida ainda estiver em from.
// finished_at só fica preenchido quando o destino é finished.
func (r *MatchRepo) Transition(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) (bool, error) {
	var finishedAt any
	if to == models.MatchFinished {
		finishedAt = at
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET status=$3, finished_at=$4, updated_at=NOW()
		WHERE id=$1 AND status=$2`,
		id, string(from), string(to), finishedAt)
	if err != nil {
		return false, fmt.Errorf("transition match %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyResult grava o placar final. Partida cancelada/adiada mantém o status;
// as demais passam para finished e recebem finished_at apenas na primeira vez.
// Retorna o status anterior e o atual.
func (r *MatchRepo) ApplyResult(ctx context.Context, id string, home, away int, at time.Time) (prev, cur models.MatchStatus, err error) {
	const q = `
		UPDATE matches m SET
		  home_score  = $2,
		  away_score  = $3,
		  status      = CASE WHEN m.status IN ('cancelled','postponed') THEN m.status ELSE 'finished' END,
		  finished_at = CASE
		                  WHEN m.status IN ('cancelled','postponed') THEN m.finished_at
		                  WHEN m.status = 'finished' THEN COALESCE(m.finished_at, $4)
		                  ELSE $4
		                END,
		  updated_at  = NOW()
		FROM (SELECT id, status FROM matches WHERE id=$1) o
		WHERE m.id = o.id
		RETURNING o.status, m.status`

	var p, c string
	if err := r.db.QueryRowContext(ctx, q, id, home, away, at).Scan(&p, &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("apply result %s: %w", id, err)
	}
	return models.MatchStatus(p), models.MatchStatus(c), nil
}

// FindByTeams procura a partida do par de times (sem diferenciar caixa) mais próxima de commence,
// com as mesmas restrições de PendingByTeams
func (r *MatchRepo) FindByTeams(ctx context.Context, eventID, home, away string, commence time.Time) (models.MatchRecord, error) {
	lo, hi := fixtureRange(commence)
	m, err := scanMatch(r.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE lower(home_team)=$1 AND lower(away_team)=$2
		  AND (external_id IS NULL OR external_id = $3)
		  AND start_time BETWEEN $4 AND $5
		ORDER BY ABS(EXTRACT(EPOCH FROM (start_time - $6::timestamptz))) LIMIT 1`,
		strings.ToLower(home), strings.ToLower(away), eventID, lo, hi, commence.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}
