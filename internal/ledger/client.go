package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Client fala com o wallet-service (ledger de saldo), que não pertence a este núcleo.
// Toda operação leva um external_ref, o que torna crédito/estorno idempotentes lá.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

type depositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"`
}

type refundRequest struct {
	UserID      string `json:"userId"`
	ExternalRef string `json:"external_ref"`
}

// StatusError é uma resposta não-2xx do ledger
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("wallet %s http %d", e.Op, e.Code) }

// Cents converte um valor monetário em centavos (arredondamento bancário)
func Cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).RoundBank(0).IntPart()
}

// Credit paga o prêmio de uma aposta ganha
func (c *Client) Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerID string) error {
	return c.post(ctx, "deposit", "/wallet/deposit", depositRequest{
		UserID: userID, AmountCents: Cents(amount), ExternalRef: "payout:" + wagerID,
	})
}

// Refund devolve o valor apostado. Primeiro tenta desfazer a reserva feita na colocação
// (external_ref = id da aposta); se ela já foi efetivada, credita o valor de volta.
func (c *Client) Refund(ctx context.Context, userID string, amount decimal.Decimal, wagerID string) error {
	err := c.post(ctx, "refund", "/wallet/refund", refundRequest{UserID: userID, ExternalRef: wagerID})
	if err == nil {
		return nil
	}
	se, ok := err.(*StatusError)
	if !ok || (se.Code != http.StatusNotFound && se.Code != http.StatusConflict) {
		return err
	}
	return c.post(ctx, "deposit", "/wallet/deposit", depositRequest{
		UserID: userID, AmountCents: Cents(amount), ExternalRef: "refund:" + wagerID,
	})
}

func (c *Client) post(ctx context.Context, op, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", op, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return &StatusError{Op: op, Code: res.StatusCode}
	}
	return nil
}
