package feedsim

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/models"
)

// Config controla o catálogo e as falhas injetadas
type Config struct {
	APIKey       string
	Quota        int     // requisições permitidas; 0 = ilimitado
	FailRate     float64 // fração de respostas 500
	ThrottleRate float64 // fração de respostas 429
	Seed         int64
}

var bookmakers = []struct{ key, title string }{
	{"pinnacle", "Pinnacle"},
	{"betfair_ex_eu", "Betfair"},
	{"unibet_eu", "Unibet"},
}

// Catálogo fixo de partidas simuladas por esporte
var catalog = map[string][][2]string{
	"soccer_epl": {
		{"Arsenal", "Chelsea"}, {"Liverpool", "Everton"}, {"Manchester City", "Tottenham Hotspur"},
	},
	"soccer_brazil_campeonato": {
		{"Flamengo", "Palmeiras"}, {"Grêmio", "Internacional"}, {"Corinthians", "Santos"}, {"São Paulo", "Vasco da Gama"},
	},
	"basketball_nba": {
		{"Boston Celtics", "Los Angeles Lakers"}, {"Denver Nuggets", "Miami Heat"},
	},
}

type event struct {
	rec   models.OddsRecord
	score [2]int
}

// Simulator emula a superfície de odds e placares do fornecedor
type Simulator struct {
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
	rng    *rand.Rand
	used   int
	events map[string][]*event
	reqs   *prometheus.CounterVec
}

func New(cfg Config, log *zap.Logger, reg prometheus.Registerer) *Simulator {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	s := &Simulator{
		cfg:    cfg,
		log:    log.Named("feedsim"),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		events: map[string][]*event{},
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsim_requests_total", Help: "requisições atendidas pelo simulador",
		}, []string{"surface", "status"}),
	}
	if reg != nil {
		reg.MustRegister(s.reqs)
	}
	s.seed()
	return s
}

// seed distribui os jogos em volta de agora: metade já começou, metade ainda vai
func (s *Simulator) seed() {
	start := s.now().UTC().Truncate(time.Minute)
	for sport, games := range catalog {
		for i, g := range games {
			commence := start.Add(time.Duration(i*90-150) * time.Minute)
			s.events[sport] = append(s.events[sport], &event{
				rec: models.OddsRecord{
					EventID:      fmt.Sprintf("%s_%03d", sport, i+1),
					SportKey:     sport,
					SportTitle:   strings.ToUpper(sport),
					CommenceTime: commence,
					HomeTeam:     g[0],
					AwayTeam:     g[1],
				},
				score: [2]int{s.rng.Intn(5), s.rng.Intn(4)},
			})
		}
	}
}

func (s *Simulator) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/v4/sports/{sport}/odds", s.handleOdds)
	r.Get("/v4/sports/{sport}/scores", s.handleScores)
	return r
}

// admit aplica chave, cota e falhas injetadas; devolve false quando já respondeu
func (s *Simulator) admit(w http.ResponseWriter, r *http.Request, surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.APIKey != "" && r.URL.Query().Get("apiKey") != s.cfg.APIKey {
		s.fail(w, surface, http.StatusUnauthorized)
		return false
	}
	if s.cfg.Quota > 0 && s.used >= s.cfg.Quota {
		s.fail(w, surface, http.StatusTooManyRequests)
		return false
	}

	roll := s.rng.Float64()
	switch {
	case roll < s.cfg.FailRate:
		s.fail(w, surface, http.StatusInternalServerError)
		return false
	case roll < s.cfg.FailRate+s.cfg.ThrottleRate:
		s.fail(w, surface, http.StatusTooManyRequests)
		return false
	}

	s.used++
	remaining := 0
	if s.cfg.Quota > 0 {
		remaining = s.cfg.Quota - s.used
	}
	w.Header().Set("x-requests-used", strconv.Itoa(s.used))
	w.Header().Set("x-requests-remaining", strconv.Itoa(remaining))
	w.Header().Set("x-requests-last", "1")
	return true
}

func (s *Simulator) fail(w http.ResponseWriter, surface string, code int) {
	s.reqs.WithLabelValues(surface, strconv.Itoa(code)).Inc()
	s.log.Debug("injected failure", zap.String("surface", surface), zap.Int("status", code))
	http.Error(w, http.StatusText(code), code)
}

func (s *Simulator) handleOdds(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "odds") {
		return
	}
	sport := chi.URLParam(r, "sport")
	var keys []string
	for _, k := range strings.Split(r.URL.Query().Get("markets"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		keys = []string{"h2h"}
	}

	s.mu.Lock()
	now := s.now().UTC()
	out := make([]models.OddsRecord, 0, len(s.events[sport]))
	for _, ev := range s.events[sport] {
		rec := ev.rec
		for _, b := range bookmakers {
			bm := models.Bookmaker{Key: b.key, Title: b.title, LastUpdate: now}
			for _, k := range keys {
				bm.Markets = append(bm.Markets, s.market(k, rec, now))
			}
			rec.Bookmakers = append(rec.Bookmakers, bm)
		}
		out = append(out, rec)
	}
	s.mu.Unlock()

	s.reqs.WithLabelValues("odds", "200").Inc()
	writeJSON(w, out)
}

// market gera preços aleatórios; chave desconhecida sai como h2h
func (s *Simulator) market(key string, rec models.OddsRecord, at time.Time) models.Market {
	m := models.Market{Key: key, LastUpdate: at}
	price := func(min, max float64) float64 {
		return float64(int((s.rng.Float64()*(max-min)+min)*100)) / 100
	}
	point := func(v float64) *float64 { return &v }

	switch key {
	case "spreads":
		line := float64(s.rng.Intn(5)) - 2 + 0.5
		m.Outcomes = []models.Outcome{
			{Name: rec.HomeTeam, Price: price(1.8, 2.1), Point: point(line)},
			{Name: rec.AwayTeam, Price: price(1.8, 2.1), Point: point(-line)},
		}
	case "totals":
		line := float64(s.rng.Intn(3)) + 1.5
		m.Outcomes = []models.Outcome{
			{Name: "Over", Price: price(1.7, 2.2), Point: point(line)},
			{Name: "Under", Price: price(1.7, 2.2), Point: point(line)},
		}
	default:
		m.Outcomes = []models.Outcome{
			{Name: rec.HomeTeam, Price: price(1.4, 3.5)},
			{Name: "Draw", Price: price(2.5, 4.5)},
			{Name: rec.AwayTeam, Price: price(2.0, 5.0)},
		}
	}
	return m
}

func (s *Simulator) handleScores(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "scores") {
		return
	}
	sport := chi.URLParam(r, "sport")
	wanted := map[string]bool{}
	for _, id := range strings.Split(r.URL.Query().Get("eventIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}

	s.mu.Lock()
	now := s.now().UTC()
	out := make([]models.CompletedResult, 0)
	for _, ev := range s.events[sport] {
		if len(wanted) > 0 && !wanted[ev.rec.EventID] {
			continue
		}
		if ev.rec.CommenceTime.After(now) {
			continue
		}
		commence := ev.rec.CommenceTime
		res := models.CompletedResult{
			EventID:      ev.rec.EventID,
			SportKey:     sport,
			CommenceTime: &commence,
			HomeTeam:     ev.rec.HomeTeam,
			AwayTeam:     ev.rec.AwayTeam,
			Completed:    now.Sub(ev.rec.CommenceTime) >= 2*time.Hour,
			Scores: []models.TeamScore{
				{Name: ev.rec.HomeTeam, Score: strconv.Itoa(ev.score[0])},
				{Name: ev.rec.AwayTeam, Score: strconv.Itoa(ev.score[1])},
			},
		}
		lu := now
		res.LastUpdate = &lu
		out = append(out, res)
	}
	s.mu.Unlock()

	s.reqs.WithLabelValues("scores", "200").Inc()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
