package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// WagerRepo guarda as apostas; a transição pending→final é um único UPDATE condicional
type WagerRepo struct {
	db *sql.DB
}

func NewWagerRepo(db *sql.DB) *WagerRepo { return &WagerRepo{db: db} }

const wagerColumns = `w.id, w.user_id, COALESCE(w.match_id::text, ''), COALESCE(w.external_match_id, ''),
	w.market_type, w.market_family, w.selection, w.selection_side, w.selection_team, w.selection_line,
	w.stake, w.odds, w.potential_payout, w.status, w.actual_payout, w.settled_at, w.created_at`

func scanWager(s rowScanner) (models.Wager, error) {
	var w models.Wager
	var family, status string
	var side, team sql.NullString
	var line sql.NullFloat64
	var settled sql.NullTime
	if err := s.Scan(&w.ID, &w.UserID, &w.MatchID, &w.ExternalMatchID,
		&w.MarketType, &family, &w.Selection, &side, &team, &line,
		&w.Stake, &w.Odds, &w.PotentialPayout, &status, &w.ActualPayout, &settled, &w.CreatedAt); err != nil {
		return w, err
	}
	w.Status = models.WagerStatus(status)
	if settled.Valid {
		t := settled.Time.UTC()
		w.SettledAt = &t
	}
	if side.Valid {
		p := &models.Pick{Family: models.MarketFamily(family), Side: models.Side(side.String), Team: team.String}
		if line.Valid {
			l := line.Float64
			p.Line = &l
		}
		w.Pick = p
	}
	return w, nil
}

func (r *WagerRepo) queryWagers(ctx context.Context, q string, args ...any) ([]models.Wager, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wager: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Insert cria a aposta pendente; idempotente pelo id (false quando já existia)
func (r *WagerRepo) Insert(ctx context.Context, w models.Wager) (bool, error) {
	family := models.FamilyUnknown
	var side, team sql.NullString
	var line sql.NullFloat64
	if w.Pick != nil {
		family = w.Pick.Family
		side = nullString(string(w.Pick.Side))
		team = nullString(w.Pick.Team)
		if w.Pick.Line != nil {
			line = sql.NullFloat64{Float64: *w.Pick.Line, Valid: true}
		}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO wagers
		  (id, user_id, match_id, external_match_id, market_type, market_family, selection,
		   selection_side, selection_team, selection_line, stake, odds, potential_payout, status, created_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'pending',$14)
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.UserID, nullString(w.MatchID), nullString(w.ExternalMatchID), w.MarketType, string(family), w.Selection,
		side, team, line, w.Stake, w.Odds, w.PotentialPayout, w.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert wager %s: %w", w.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *WagerRepo) Get(ctx context.Context, id string) (models.Wager, error) {
	w, err := scanWager(r.db.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers w WHERE w.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

// PendingByExternalID busca apostas pendentes pelo id externo exato da partida
func (r *WagerRepo) PendingByExternalID(ctx context.Context, externalID string) ([]models.Wager, error) {
	ws, err := r.queryWagers(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		LEFT JOIN matches m ON m.id = w.match_id
		WHERE w.status='pending' AND (w.external_match_id=$1 OR m.external_id=$1)
		ORDER BY w.created_at`, externalID)
	if err != nil {
		return nil, fmt.Errorf("pending wagers by external id: %w", err)
	}
	return ws, nil
}

// PendingByTeams é o fallback por par de times (sem diferenciar caixa). Só considera partidas
// sem id externo ou com o mesmo id do resultado, com início dentro de FixtureWindow de commence.
func (r *WagerRepo) PendingByTeams(ctx context.Context, eventID, home, away string, commence time.Time) ([]models.Wager, error) {
	lo, hi := fixtureRange(commence)
	ws, err := r.queryWagers(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		JOIN matches m ON m.id = w.match_id OR (w.match_id IS NULL AND m.external_id = w.external_match_id)
		WHERE w.status='pending' AND lower(m.home_team)=$1 AND lower(m.away_team)=$2
		  AND (m.external_id IS NULL OR m.external_id = $3)
		  AND m.start_time BETWEEN $4 AND $5
		ORDER BY w.created_at`, strings.ToLower(home), strings.ToLower(away), eventID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("pending wagers by teams: %w", err)
	}
	return ws, nil
}

// PendingByMatch lista as pendentes de uma partida interna (anulação)
func (r *WagerRepo) PendingByMatch(ctx context.Context, matchID string) ([]models.Wager, error) {
	ws, err := r.queryWagers(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		LEFT JOIN matches m ON m.external_id = w.external_match_id
		WHERE w.status='pending' AND (w.match_id=$1 OR m.id=$1)
		ORDER BY w.created_at`, matchID)
	if err != nil {
		return nil, fmt.Errorf("pending wagers by match: %w", err)
	}
	return ws, nil
}

// PendingStarted agrupa por esporte os ids externos de partidas já iniciadas com apostas pendentes
func (r *WagerRepo) PendingStarted(ctx context.Context, before time.Time) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT m.sport_key, m.external_id
		FROM wagers w
		JOIN matches m ON m.id = w.match_id OR (w.match_id IS NULL AND m.external_id = w.external_match_id)
		WHERE w.status='pending' AND m.start_time <= $1 AND m.external_id IS NOT NULL
		  AND m.status NOT IN ('cancelled','postponed')
		ORDER BY m.sport_key, m.external_id`, before)
	if err != nil {
		return nil, fmt.Errorf("pending started matches: %w", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var sport, ext string
		if err := rows.Scan(&sport, &ext); err != nil {
			return nil, err
		}
		out[sport] = append(out[sport], ext)
	}
	return out, rows.Err()
}

// Settle aplica pending→status em um único UPDATE condicional.
// false significa que a aposta já estava em status final (outra execução venceu).
// Ganhas, anuladas e canceladas ficam com payout_pending até MarkPaid.
func (r *WagerRepo) Settle(ctx context.Context, id string, status models.WagerStatus, payout decimal.Decimal, at time.Time) (bool, error) {
	if status == models.WagerPending {
		return false, fmt.Errorf("settle %s: target status must be terminal", id)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE wagers
		SET status=$2, actual_payout=$3, settled_at=$4, payout_pending=$5
		WHERE id=$1 AND status='pending'`,
		id, string(status), payout, at, status.OwesLedger())
	if err != nil {
		return false, fmt.Errorf("settle wager %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Unpaid lista apostas finalizadas cujo crédito ou estorno no ledger ainda não foi confirmado
func (r *WagerRepo) Unpaid(ctx context.Context) ([]models.Wager, error) {
	ws, err := r.queryWagers(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		WHERE w.payout_pending AND w.status IN ('won','void','cancelled')
		ORDER BY w.settled_at`)
	if err != nil {
		return nil, fmt.Errorf("unpaid wagers: %w", err)
	}
	return ws, nil
}

// MarkPaid limpa o marcador depois que o ledger confirmou a movimentação
func (r *WagerRepo) MarkPaid(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE wagers SET payout_pending=false WHERE id=$1`, id); err != nil {
		return fmt.Errorf("mark wager %s paid: %w", id, err)
	}
	return nil
}
