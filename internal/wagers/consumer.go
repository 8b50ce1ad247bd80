package wagers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/markets"
	"github.com/radieske/sports-odds-core/internal/settlement"
	"github.com/radieske/sports-odds-core/internal/shared/clock"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/internal/store"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

var ErrMalformed = errors.New("malformed bet placement")

// intakeRetries é quantas vezes uma falha transitória (banco, lookup) é refeita antes da DLQ
const intakeRetries = 3

// MessageReader é o subconjunto do kafka.Reader usado pelo consumidor
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter recebe as mensagens descartadas (DLQ)
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Store interface {
	Insert(ctx context.Context, w models.Wager) (bool, error)
}

type MatchLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (models.MatchRecord, error)
}

// Consumer lê bet_placed e grava a aposta pendente com a seleção já estruturada
type Consumer struct {
	Log     *zap.Logger
	Reader  MessageReader
	Store   Store
	Matches MatchLookup
	Metrics *metrics.Pipeline
	// DLQ é opcional; quando presente recebe as mensagens malformadas com o motivo no header
	DLQ      MessageWriter
	DLQTopic string

	retryDelay time.Duration
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (c *Consumer) Run(ctx context.Context) error {
	delay := c.delay()
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.Metrics.WagerIngested("read_error")
			if err := clock.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if err := c.handleWithRetry(ctx, m); err != nil {
			if errors.Is(err, ErrMalformed) {
				c.Log.Warn("skipping malformed placement",
					zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
				c.Metrics.WagerIngested("malformed")
				c.deadLetter(ctx, m, err)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// o offset já foi confirmado; sem a DLQ a aposta não seria mais vista
			c.Log.Error("wager intake failed after retries",
				zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
			c.Metrics.WagerIngested("error")
			c.deadLetter(ctx, m, err)
		}
	}
}

func (c *Consumer) delay() time.Duration {
	if c.retryDelay == 0 {
		return 300 * time.Millisecond
	}
	return c.retryDelay
}

// handleWithRetry refaz falhas transitórias com espera crescente; mensagens malformadas não são refeitas
func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) error {
	err := c.Handle(ctx, m.Value)
	for i := 0; i < intakeRetries && err != nil && !errors.Is(err, ErrMalformed); i++ {
		c.Log.Warn("wager intake failed, retrying",
			zap.Int64("offset", m.Offset), zap.Int("attempt", i+1), zap.Error(err))
		if serr := clock.Sleep(ctx, time.Duration(i+1)*c.delay()); serr != nil {
			return err
		}
		err = c.Handle(ctx, m.Value)
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.DLQ == nil {
		return
	}
	msg := kafka.Message{
		Topic: c.DLQTopic,
		Key:   m.Key,
		Value: m.Value,
		Headers: append(m.Headers,
			kafka.Header{Key: "dlq_reason", Value: []byte(cause.Error())},
			kafka.Header{Key: "source_topic", Value: []byte(m.Topic)},
		),
		Time: time.Now(),
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.DLQ.WriteMessages(wctx, msg); err != nil {
		c.Log.Warn("dlq write failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// Handle processa uma mensagem bet_placed. Reentregas da mesma aposta não duplicam.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var ev events.BetPlaced
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	w, err := Build(ev)
	if err != nil {
		return err
	}

	match, err := c.Matches.GetByExternalID(ctx, ev.EventID)
	switch {
	case err == nil:
		w.MatchID = match.ID
	case errors.Is(err, store.ErrNotFound):
		// a liquidação ainda casa pelo id externo ou pelo par de times
		c.Log.Info("match not mirrored yet", zap.String("bet_id", w.ID), zap.String("event_id", ev.EventID))
	default:
		return fmt.Errorf("lookup match %s: %w", ev.EventID, err)
	}

	if w.Pick == nil {
		c.Log.Warn("selection not parseable, wager will settle as lost",
			zap.String("bet_id", w.ID), zap.String("market", w.MarketType), zap.String("selection", w.Selection))
	}

	created, err := c.Store.Insert(ctx, w)
	if err != nil {
		return err
	}
	if !created {
		c.Log.Debug("duplicate placement ignored", zap.String("bet_id", w.ID))
		c.Metrics.WagerIngested("duplicate")
		return nil
	}
	c.Metrics.WagerIngested("created")
	c.Log.Info("wager accepted",
		zap.String("bet_id", w.ID),
		zap.String("user_id", w.UserID),
		zap.String("market", w.MarketType),
		zap.String("stake", w.Stake.StringFixed(2)),
		zap.String("potential_payout", w.PotentialPayout.StringFixed(2)))
	return nil
}

// Build monta a aposta pendente a partir do evento: normaliza o mercado, estrutura a
// seleção e calcula o retorno potencial (stake × odds, 2 casas).
func Build(ev events.BetPlaced) (models.Wager, error) {
	if ev.BetID == "" || ev.UserID == "" || ev.EventID == "" {
		return models.Wager{}, fmt.Errorf("%w: missing bet, user or event id", ErrMalformed)
	}
	stake, err := parseStake(ev)
	if err != nil {
		return models.Wager{}, err
	}
	if ev.OddValue <= 1 {
		return models.Wager{}, fmt.Errorf("%w: odd %v", ErrMalformed, ev.OddValue)
	}
	odds := decimal.NewFromFloat(ev.OddValue)

	createdAt := time.Now().UTC()
	if ev.TsUnixMs > 0 {
		createdAt = time.UnixMilli(ev.TsUnixMs).UTC()
	}

	w := models.Wager{
		ID:              ev.BetID,
		UserID:          ev.UserID,
		ExternalMatchID: ev.EventID,
		MarketType:      markets.Normalize(ev.Market),
		Selection:       strings.TrimSpace(ev.Selection),
		Stake:           stake,
		Odds:            odds,
		PotentialPayout: stake.Mul(odds).Round(2),
		Status:          models.WagerPending,
		CreatedAt:       createdAt,
	}
	if p, err := settlement.ParseSelection(w.MarketType, w.Selection); err == nil {
		w.Pick = &p
	}
	return w, nil
}

func parseStake(ev events.BetPlaced) (decimal.Decimal, error) {
	var stake decimal.Decimal
	switch {
	case strings.TrimSpace(ev.Stake) != "":
		s, err := decimal.NewFromString(strings.TrimSpace(ev.Stake))
		if err != nil {
			return stake, fmt.Errorf("%w: stake %q", ErrMalformed, ev.Stake)
		}
		stake = s
	case ev.StakeCents > 0:
		stake = decimal.New(ev.StakeCents, -2)
	}
	if !stake.IsPositive() {
		return stake, fmt.Errorf("%w: stake must be positive", ErrMalformed)
	}
	return stake.Round(2), nil
}
