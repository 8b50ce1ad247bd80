// Package store persiste documentos de odds, partidas e apostas no Postgres.
package store

import (
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// FixtureWindow limita o casamento por par de times a partidas que começam perto do
// horário do resultado, para não confundir jogos repetidos entre os mesmos times
const FixtureWindow = 12 * time.Hour

func fixtureRange(commence time.Time) (time.Time, time.Time) {
	c := commence.UTC()
	return c.Add(-FixtureWindow), c.Add(FixtureWindow)
}

// Postgres reúne os repositórios sobre a mesma conexão
type Postgres struct {
	Odds    *OddsRepo
	Matches *MatchRepo
	Wagers  *WagerRepo
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		Odds:    &OddsRepo{db: db},
		Matches: &MatchRepo{db: db},
		Wagers:  &WagerRepo{db: db},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
