package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/clock"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Source é o contrato consumido pela ingestão e pela liquidação.
// Nenhum método retorna erro: falhas degradam para resultado vazio.
type Source interface {
	FetchOdds(ctx context.Context, sport string, markets []string) []models.OddsRecord
	FetchScores(ctx context.Context, sport string, eventIDs []string) []models.CompletedResult
}

// Quota é o último consumo informado pelo fornecedor nos headers da resposta
type Quota struct {
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	Last      int       `json:"last"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client fala com a API v4 do fornecedor de odds (formato The Odds API)
type Client struct {
	cfg      config.FeedConfig
	http     *http.Client
	log      *zap.Logger
	metrics  *metrics.Pipeline
	disabled bool
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu    sync.RWMutex
	quota Quota

	snapOnce sync.Once
	snapshot map[string][]models.OddsRecord
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSleep troca a espera entre tentativas/chunks (testes usam espera nula)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(c *Client) { c.metrics = m }
}

// New cria o client. Sem API key o client fica desabilitado e toda chamada vira no-op logado.
func New(cfg config.FeedConfig, log *zap.Logger, opts ...Option) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxMarketsPerRequest <= 0 {
		cfg.MaxMarketsPerRequest = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log.Named("feed"),
		sleep: clock.Sleep,
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		c.disabled = true
		c.log.Warn("odds api key not configured, feed client disabled")
	}
	return c
}

func (c *Client) Disabled() bool { return c.disabled }

// Quota devolve o último snapshot de cota registrado
func (c *Client) Quota() Quota {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quota
}

// FetchOdds busca as odds de um esporte, dividindo os mercados em chunks de no máximo
// MaxMarketsPerRequest chaves, com ChunkDelay entre os chunks.
// Um mesmo evento pode aparecer uma vez por chunk; o merge consolida.
func (c *Client) FetchOdds(ctx context.Context, sport string, markets []string) []models.OddsRecord {
	if c.disabled {
		c.log.Debug("feed disabled, skipping odds fetch", zap.String("sport", sport))
		c.metrics.FeedRequest(sport, "disabled")
		return nil
	}

	var out []models.OddsRecord
	for i, chunk := range Chunk(markets, c.cfg.MaxMarketsPerRequest) {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.ChunkDelay); err != nil {
				return out
			}
		}

		body, err := c.get(ctx, sport, c.oddsURL(sport, chunk))
		if err != nil {
			out = append(out, c.degrade(sport, chunk, err)...)
			continue
		}

		var events []models.OddsRecord
		if err := json.Unmarshal(body, &events); err != nil {
			c.log.Warn("invalid odds payload", zap.String("sport", sport), zap.Error(err))
			c.metrics.FeedRequest(sport, "decode_error")
			continue
		}
		c.log.Debug("odds chunk fetched",
			zap.String("sport", sport),
			zap.Strings("markets", chunk),
			zap.Int("events", len(events)))
		out = append(out, events...)
	}
	return out
}

// FetchScores busca placares e devolve só os resultados completos com placar legível
func (c *Client) FetchScores(ctx context.Context, sport string, eventIDs []string) []models.CompletedResult {
	if c.disabled {
		c.log.Debug("feed disabled, skipping scores fetch", zap.String("sport", sport))
		c.metrics.FeedRequest(sport, "disabled")
		return nil
	}

	body, err := c.get(ctx, sport, c.scoresURL(sport, eventIDs))
	if err != nil {
		c.log.Warn("scores fetch failed", zap.String("sport", sport), zap.Error(err))
		return nil
	}

	var raw []models.CompletedResult
	if err := json.Unmarshal(body, &raw); err != nil {
		c.log.Warn("invalid scores payload", zap.String("sport", sport), zap.Error(err))
		c.metrics.FeedRequest(sport, "decode_error")
		return nil
	}

	out := raw[:0]
	for _, r := range raw {
		if !r.Completed {
			continue
		}
		if _, _, err := r.FinalScore(); err != nil {
			c.log.Debug("skipping result without final score", zap.String("event_id", r.EventID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *Client) oddsURL(sport string, markets []string) string {
	q := url.Values{}
	q.Set("apiKey", c.cfg.APIKey)
	q.Set("regions", strings.Join(c.cfg.Regions, ","))
	q.Set("markets", strings.Join(markets, ","))
	q.Set("oddsFormat", "decimal")
	q.Set("dateFormat", "iso")
	if len(c.cfg.Bookmakers) > 0 {
		q.Set("bookmakers", strings.Join(c.cfg.Bookmakers, ","))
	}
	return c.endpoint(sport, "odds") + "?" + q.Encode()
}

func (c *Client) scoresURL(sport string, eventIDs []string) string {
	q := url.Values{}
	q.Set("apiKey", c.cfg.APIKey)
	q.Set("dateFormat", "iso")
	if c.cfg.ScoresDaysFrom > 0 {
		q.Set("daysFrom", strconv.Itoa(c.cfg.ScoresDaysFrom))
	}
	if len(eventIDs) > 0 {
		q.Set("eventIds", strings.Join(eventIDs, ","))
	}
	return c.endpoint(sport, "scores") + "?" + q.Encode()
}

func (c *Client) endpoint(sport, surface string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v4/sports/" + url.PathEscape(sport) + "/" + surface
}

// get executa a requisição com backoff exponencial (base, fator 2, teto BackoffMax).
// Toda resposta não-2xx é tentada de novo.
func (c *Client) get(ctx context.Context, sport, rawURL string) ([]byte, error) {
	delay := c.cfg.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.do(ctx, rawURL)
		if err == nil {
			c.metrics.FeedRequest(sport, "ok")
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.MaxAttempts {
			c.log.Warn("feed request failed, retrying",
				zap.String("sport", sport),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
			c.metrics.FeedRequest(sport, "retry")
			if serr := c.sleep(ctx, delay); serr != nil {
				break
			}
			delay *= 2
			if c.cfg.BackoffMax > 0 && delay > c.cfg.BackoffMax {
				delay = c.cfg.BackoffMax
			}
		}
	}

	c.metrics.FeedRequest(sport, "failed")
	return nil, fmt.Errorf("feed %s: %w", sport, lastErr)
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.recordQuota(res.Header)

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{Code: res.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func (c *Client) recordQuota(h http.Header) {
	remaining, okR := headerInt(h, "x-requests-remaining")
	used, okU := headerInt(h, "x-requests-used")
	last, okL := headerInt(h, "x-requests-last")
	if !okR && !okU && !okL {
		return
	}

	c.mu.Lock()
	if okR {
		c.quota.Remaining = remaining
	}
	if okU {
		c.quota.Used = used
	}
	if okL {
		c.quota.Last = last
	}
	c.quota.UpdatedAt = c.now()
	q := c.quota
	c.mu.Unlock()

	c.metrics.Quota(q.Remaining, q.Used)
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	// o fornecedor às vezes manda "12.0"
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// Chunk divide as chaves em lotes de no máximo size itens
func Chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for len(keys) > 0 {
		n := size
		if len(keys) < n {
			n = len(keys)
		}
		out = append(out, keys[:n:n])
		keys = keys[n:]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
