package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WagerStatus string

const (
	WagerPending   WagerStatus = "pending"
	WagerWon       WagerStatus = "won"
	WagerLost      WagerStatus = "lost"
	WagerVoid      WagerStatus = "void"
	WagerCancelled WagerStatus = "cancelled"
)

func (s WagerStatus) Terminal() bool { return s != WagerPending }

// OwesLedger indica os status finais que movimentam saldo (prêmio ou estorno)
func (s WagerStatus) OwesLedger() bool {
	return s == WagerWon || s == WagerVoid || s == WagerCancelled
}

// MarketFamily agrupa as chaves canônicas pela regra de liquidação
type MarketFamily string

const (
	FamilyMatchWinner MarketFamily = "match_winner"
	FamilyHandicap    MarketFamily = "handicap"
	FamilyTotals      MarketFamily = "totals"
	FamilyUnknown     MarketFamily = "unknown"
)

type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideDraw  Side = "draw"
	SideOver  Side = "over"
	SideUnder Side = "under"
	// SideTeam indica seleção por nome de time, resolvida contra o resultado
	SideTeam Side = "team"
)

// Pick é a seleção estruturada, calculada uma vez na entrada da aposta
type Pick struct {
	Family MarketFamily `json:"family"`
	Side   Side         `json:"side"`
	Team   string       `json:"team,omitempty"`
	Line   *float64     `json:"line,omitempty"`
}

// Wager é a aposta do usuário; só a liquidação ou o cancelamento explícito a alteram
type Wager struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	MatchID         string          `json:"match_id,omitempty"`
	ExternalMatchID string          `json:"external_match_id,omitempty"`
	MarketType      string          `json:"market_type"`
	Selection       string          `json:"selection"`
	Pick            *Pick           `json:"pick,omitempty"`
	Stake           decimal.Decimal `json:"stake"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Status          WagerStatus     `json:"status"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	ActualPayout    decimal.Decimal `json:"actual_payout"`
	CreatedAt       time.Time       `json:"created_at"`
}
