package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/feed"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/internal/store"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

var ErrAlreadySettled = errors.New("wager already settled")

type WagerStore interface {
	Get(ctx context.Context, id string) (models.Wager, error)
	PendingByExternalID(ctx context.Context, externalID string) ([]models.Wager, error)
	PendingByTeams(ctx context.Context, eventID, home, away string, commence time.Time) ([]models.Wager, error)
	PendingByMatch(ctx context.Context, matchID string) ([]models.Wager, error)
	PendingStarted(ctx context.Context, before time.Time) (map[string][]string, error)
	Settle(ctx context.Context, id string, status models.WagerStatus, payout decimal.Decimal, at time.Time) (bool, error)
	Unpaid(ctx context.Context) ([]models.Wager, error)
	MarkPaid(ctx context.Context, id string) error
}

type MatchStore interface {
	GetByExternalID(ctx context.Context, externalID string) (models.MatchRecord, error)
	FindByTeams(ctx context.Context, eventID, home, away string, commence time.Time) (models.MatchRecord, error)
	ApplyResult(ctx context.Context, id string, home, away int, at time.Time) (prev, cur models.MatchStatus, err error)
}

// Ledger é o serviço de saldo externo
type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerID string) error
	Refund(ctx context.Context, userID string, amount decimal.Decimal, wagerID string) error
}

type Publisher interface {
	Publish(e events.Event)
}

type Engine struct {
	wagers  WagerStore
	matches MatchStore
	ledger  Ledger
	bus     Publisher
	scores  feed.Source
	log     *zap.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
}

func NewEngine(wagers WagerStore, matches MatchStore, ledger Ledger, bus Publisher, scores feed.Source, log *zap.Logger, m *metrics.Pipeline) *Engine {
	return &Engine{
		wagers:  wagers,
		matches: matches,
		ledger:  ledger,
		bus:     bus,
		scores:  scores,
		log:     log.Named("settlement"),
		metrics: m,
		now:     time.Now,
	}
}

// Summary agrega uma passada de liquidação
type Summary struct {
	Matched        int
	Won            int
	Lost           int
	Void           int
	Cancelled      int
	Ties           int
	AlreadySettled int
	Errors         int
	// Unpaid conta créditos/estornos que falharam e ficaram para a próxima passada
	Unpaid int
	Repaid int
}

func (s *Summary) add(o Summary) {
	s.Matched += o.Matched
	s.Won += o.Won
	s.Lost += o.Lost
	s.Void += o.Void
	s.Cancelled += o.Cancelled
	s.Ties += o.Ties
	s.AlreadySettled += o.AlreadySettled
	s.Errors += o.Errors
	s.Unpaid += o.Unpaid
	s.Repaid += o.Repaid
}

// SettleResult liquida todas as apostas pendentes da partida do resultado.
// Reexecutar com o mesmo resultado não altera nenhuma aposta já finalizada.
func (e *Engine) SettleResult(ctx context.Context, res models.CompletedResult) (Summary, error) {
	var sum Summary
	if !res.Completed {
		return sum, fmt.Errorf("result %s not completed", res.EventID)
	}
	home, away, err := res.FinalScore()
	if err != nil {
		return sum, err
	}

	status, err := e.recordScore(ctx, res, home, away)
	if err != nil {
		return sum, err
	}

	wagers, err := e.wagers.PendingByExternalID(ctx, res.EventID)
	if err != nil {
		return sum, err
	}
	if len(wagers) == 0 && res.HomeTeam != "" && res.AwayTeam != "" && res.CommenceTime != nil {
		wagers, err = e.wagers.PendingByTeams(ctx, res.EventID, res.HomeTeam, res.AwayTeam, *res.CommenceTime)
		if err != nil {
			return sum, err
		}
	}
	sum.Matched = len(wagers)

	// partida cancelada não é liquidada pelo placar: as pendentes são anuladas com estorno
	if status == models.MatchCancelled {
		for _, w := range wagers {
			e.settle(ctx, w, Verdict{Status: models.WagerVoid, Reason: "match cancelled"}, &sum)
		}
		e.log.Warn("result for cancelled match, pending wagers voided",
			zap.String("event_id", res.EventID), zap.Int("voided", sum.Void))
		return sum, nil
	}

	for _, w := range wagers {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		pick := w.Pick
		if pick == nil {
			p, perr := ParseSelection(w.MarketType, w.Selection)
			if perr != nil {
				e.log.Warn("unparseable selection, settling as lost",
					zap.String("wager_id", w.ID),
					zap.String("market_type", w.MarketType),
					zap.String("selection", w.Selection),
					zap.Error(perr))
				e.settle(ctx, w, Verdict{Status: models.WagerLost, Reason: "unparseable selection"}, &sum)
				continue
			}
			pick = &p
		}

		v := Evaluate(*pick, res, home, away)
		if v.Reason != "" && !v.Tie {
			e.log.Warn("wager settled as lost for audit",
				zap.String("wager_id", w.ID), zap.String("selection", w.Selection), zap.String("reason", v.Reason))
		}
		if v.Tie {
			e.log.Info("line tied, settled as lost",
				zap.String("wager_id", w.ID), zap.String("selection", w.Selection),
				zap.Int("home", home), zap.Int("away", away))
		}
		e.settle(ctx, w, v, &sum)
	}

	e.log.Info("result settled",
		zap.String("event_id", res.EventID),
		zap.Int("matched", sum.Matched),
		zap.Int("won", sum.Won),
		zap.Int("lost", sum.Lost),
		zap.Int("already_settled", sum.AlreadySettled))
	return sum, nil
}

// recordScore grava o placar na partida e publica a transição quando ela termina aqui.
// Devolve o status atual da partida, ou "" quando ela não foi encontrada.
func (e *Engine) recordScore(ctx context.Context, res models.CompletedResult, home, away int) (models.MatchStatus, error) {
	match, err := e.matches.GetByExternalID(ctx, res.EventID)
	if errors.Is(err, store.ErrNotFound) && res.CommenceTime != nil {
		match, err = e.matches.FindByTeams(ctx, res.EventID, res.HomeTeam, res.AwayTeam, *res.CommenceTime)
	}
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("match lookup for %s: %w", res.EventID, err)
	}

	at := e.now().UTC()
	prev, cur, err := e.matches.ApplyResult(ctx, match.ID, home, away, at)
	if err != nil {
		return "", fmt.Errorf("apply result to %s: %w", match.ID, err)
	}
	if prev != cur && cur == models.MatchFinished {
		e.metrics.Transition(string(prev), string(cur))
		e.bus.Publish(events.MatchLifecycleChanged{
			MatchID:    match.ID,
			ExternalID: match.ExternalID,
			SportKey:   match.SportKey,
			From:       string(prev),
			To:         string(cur),
			Reason:     "result",
			FinishedAt: &at,
			At:         at,
		})
	}
	return cur, nil
}

// VoidMatch anula as pendentes de uma partida cancelada e estorna o valor apostado
func (e *Engine) VoidMatch(ctx context.Context, matchID, reason string) (int, error) {
	wagers, err := e.wagers.PendingByMatch(ctx, matchID)
	if err != nil {
		return 0, err
	}
	var sum Summary
	for _, w := range wagers {
		e.settle(ctx, w, Verdict{Status: models.WagerVoid, Reason: reason}, &sum)
	}
	return sum.Void, nil
}

// CancelWager cancela explicitamente uma aposta pendente, com estorno
func (e *Engine) CancelWager(ctx context.Context, id, reason string) error {
	w, err := e.wagers.Get(ctx, id)
	if err != nil {
		return err
	}
	if w.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadySettled, id, w.Status)
	}
	var sum Summary
	e.settle(ctx, w, Verdict{Status: models.WagerCancelled, Reason: reason}, &sum)
	if sum.AlreadySettled > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, id)
	}
	if sum.Errors > 0 {
		return fmt.Errorf("cancel wager %s failed", id)
	}
	return nil
}

// settle faz a transição condicional pending→final e, se venceu a corrida, movimenta o
// ledger e publica wager.settled
func (e *Engine) settle(ctx context.Context, w models.Wager, v Verdict, sum *Summary) {
	payout := decimal.Zero
	if v.Status == models.WagerWon {
		payout = w.PotentialPayout
	}
	at := e.now().UTC()

	ok, err := e.wagers.Settle(ctx, w.ID, v.Status, payout, at)
	if err != nil {
		sum.Errors++
		e.log.Error("wager settle failed", zap.String("wager_id", w.ID), zap.Error(err))
		return
	}
	if !ok {
		sum.AlreadySettled++
		return
	}

	switch v.Status {
	case models.WagerWon:
		sum.Won++
	case models.WagerLost:
		sum.Lost++
		if v.Tie {
			sum.Ties++
		}
	case models.WagerVoid:
		sum.Void++
	case models.WagerCancelled:
		sum.Cancelled++
	}
	if v.Status.OwesLedger() && !e.pay(ctx, w, v.Status, payout) {
		sum.Unpaid++
	}

	e.metrics.WagerSettled(string(v.Status))
	e.bus.Publish(events.WagerSettled{
		WagerID:         w.ID,
		UserID:          w.UserID,
		MatchID:         w.MatchID,
		ExternalMatchID: w.ExternalMatchID,
		Status:          string(v.Status),
		Stake:           w.Stake.StringFixed(2),
		Payout:          payout.StringFixed(2),
		Tie:             v.Tie,
		Reason:          v.Reason,
		SettledAt:       at,
	})
}

// pay credita o prêmio ou estorna o valor apostado e limpa o marcador de pagamento.
// Falhas ficam marcadas na aposta e são refeitas por RetryPayouts.
func (e *Engine) pay(ctx context.Context, w models.Wager, status models.WagerStatus, payout decimal.Decimal) bool {
	var err error
	if status == models.WagerWon {
		err = e.ledger.Credit(ctx, w.UserID, payout, w.ID)
	} else {
		err = e.ledger.Refund(ctx, w.UserID, w.Stake, w.ID)
	}
	if err != nil {
		e.metrics.LedgerError()
		e.log.Error("ledger movement failed, left for retry",
			zap.String("wager_id", w.ID), zap.String("user_id", w.UserID),
			zap.String("status", string(status)), zap.String("payout", payout.StringFixed(2)), zap.Error(err))
		return false
	}
	if err := e.wagers.MarkPaid(ctx, w.ID); err != nil {
		// o ledger é idempotente pela referência da aposta; repetir o movimento é seguro
		e.log.Warn("mark paid failed", zap.String("wager_id", w.ID), zap.Error(err))
	}
	return true
}

// RetryPayouts refaz créditos e estornos de apostas finalizadas que o ledger não confirmou
func (e *Engine) RetryPayouts(ctx context.Context) (Summary, error) {
	var sum Summary
	wagers, err := e.wagers.Unpaid(ctx)
	if err != nil {
		return sum, err
	}
	for _, w := range wagers {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if e.pay(ctx, w, w.Status, w.ActualPayout) {
			sum.Repaid++
		} else {
			sum.Unpaid++
		}
	}
	if len(wagers) > 0 {
		e.log.Info("payout retry done", zap.Int("repaid", sum.Repaid), zap.Int("still_unpaid", sum.Unpaid))
	}
	return sum, nil
}

// RunPending é a passada periódica: refaz pagamentos não confirmados, busca placares (via cache)
// das partidas já iniciadas que ainda têm apostas pendentes e liquida cada resultado completo
func (e *Engine) RunPending(ctx context.Context) (Summary, error) {
	var total Summary
	retried, err := e.RetryPayouts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		e.log.Warn("payout retry failed", zap.Error(err))
		total.Errors++
	}
	total.add(retried)

	bySport, err := e.wagers.PendingStarted(ctx, e.now().UTC())
	if err != nil {
		return total, err
	}

	for sport, ids := range bySport {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		results := e.scores.FetchScores(ctx, sport, ids)
		for _, res := range results {
			s, err := e.SettleResult(ctx, res)
			if err != nil {
				e.log.Warn("settle result failed", zap.String("event_id", res.EventID), zap.Error(err))
				total.Errors++
				continue
			}
			total.add(s)
		}
	}
	return total, nil
}

// OnFinished devolve um handler do bus que dispara trigger quando uma partida termina
func OnFinished(trigger func()) func(ctx context.Context, env events.Envelope) {
	return func(_ context.Context, env events.Envelope) {
		if env.Type != events.TypeMatchLifecycleChanged {
			return
		}
		ev, err := env.Decode()
		if err != nil {
			return
		}
		if lc, ok := ev.(*events.MatchLifecycleChanged); ok && lc.To == string(models.MatchFinished) && lc.Reason != "result" {
			trigger()
		}
	}
}
