package settlement

import (
	"errors"
	"testing"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		market    string
		selection string
		family    models.MarketFamily
		side      models.Side
		team      string
		line      *float64
	}{
		{"h2h", "home", models.FamilyMatchWinner, models.SideHome, "", nil},
		{"moneyline", "2", models.FamilyMatchWinner, models.SideAway, "", nil},
		{"1x2", "X", models.FamilyMatchWinner, models.SideDraw, "", nil},
		{"h2h", "Schalke 04", models.FamilyMatchWinner, models.SideTeam, "Schalke 04", nil},
		{"spreads", "away +1.5", models.FamilyHandicap, models.SideAway, "", ptr(1.5)},
		{"asian_handicap", "Home -0.5", models.FamilyHandicap, models.SideHome, "", ptr(-0.5)},
		{"spreads", "Real  Madrid -1", models.FamilyHandicap, models.SideTeam, "Real Madrid", ptr(-1)},
		{"totals", "under 2.5", models.FamilyTotals, models.SideUnder, "", ptr(2.5)},
		{"over_under", "Over 215.5", models.FamilyTotals, models.SideOver, "", ptr(215.5)},
	}
	for _, tt := range tests {
		t.Run(tt.market+"/"+tt.selection, func(t *testing.T) {
			got, err := ParseSelection(tt.market, tt.selection)
			if err != nil {
				t.Fatal(err)
			}
			if got.Family != tt.family || got.Side != tt.side || got.Team != tt.team {
				t.Fatalf("got %+v", got)
			}
			if (got.Line == nil) != (tt.line == nil) || (got.Line != nil && *got.Line != *tt.line) {
				t.Fatalf("line = %v, want %v", got.Line, tt.line)
			}
		})
	}
}

func TestParseSelectionRejects(t *testing.T) {
	tests := []struct{ market, selection string }{
		{"h2h", ""},
		{"h2h", "over"},
		{"spreads", "away"},
		{"spreads", "over 2.5"},
		{"totals", "home 2.5"},
		{"totals", "under two"},
		{"both_teams_to_score", "yes"},
	}
	for _, tt := range tests {
		if _, err := ParseSelection(tt.market, tt.selection); !errors.Is(err, ErrUnparseableSelection) {
			t.Errorf("ParseSelection(%q, %q) err = %v", tt.market, tt.selection, err)
		}
	}
}

func ptr(v float64) *float64 { return &v }
