package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"21", 2100},
		{"10.505", 1050},
		{"10.515", 1052},
		{"0.01", 1},
	}
	for _, tt := range tests {
		if got := Cents(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("Cents(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCreditPostsDeposit(t *testing.T) {
	var got depositRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/deposit" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Credit(context.Background(), "u1", decimal.RequireFromString("21.00"), "w1"); err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.AmountCents != 2100 || got.ExternalRef != "payout:w1" {
		t.Fatalf("request = %+v", got)
	}
}

func TestRefundFallsBackToDepositWhenReservationCommitted(t *testing.T) {
	var paths []string
	var deposit depositRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/wallet/refund":
			w.WriteHeader(http.StatusNotFound)
		case "/wallet/deposit":
			_ = json.NewDecoder(r.Body).Decode(&deposit)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Refund(context.Background(), "u1", decimal.RequireFromString("10"), "w1"); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || deposit.ExternalRef != "refund:w1" || deposit.AmountCents != 1000 {
		t.Fatalf("paths = %v deposit = %+v", paths, deposit)
	}
}

func TestRefundPropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).Refund(context.Background(), "u1", decimal.RequireFromString("10"), "w1")
	se, ok := err.(*StatusError)
	if !ok || se.Code != http.StatusInternalServerError || se.Op != "refund" {
		t.Fatalf("err = %v", err)
	}
}
