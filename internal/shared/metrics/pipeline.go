package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline agrupa as métricas Prometheus das tarefas do núcleo.
// Todos os métodos aceitam receptor nil, o que permite usar os componentes sem métricas (ex.: testes).
type Pipeline struct {
	feedRequests   *prometheus.CounterVec
	quotaRemaining prometheus.Gauge
	quotaUsed      prometheus.Gauge
	ingestEvents   *prometheus.CounterVec
	mergeWrites    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	wagersSettled  *prometheus.CounterVec
	ledgerErrors   prometheus.Counter
	taskRuns       *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	busDropped     *prometheus.CounterVec
	wagersIngested *prometheus.CounterVec
}

// NewPipeline cria e registra as métricas no registerer informado
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		feedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odds_feed_requests_total", Help: "requisições ao fornecedor por esporte e resultado",
		}, []string{"sport", "outcome"}),
		quotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odds_feed_quota_remaining", Help: "cota restante informada pelo fornecedor",
		}),
		quotaUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odds_feed_quota_used", Help: "cota usada informada pelo fornecedor",
		}),
		ingestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odds_ingest_events_total", Help: "eventos recebidos do fornecedor",
		}, []string{"sport"}),
		mergeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odds_merge_writes_total", Help: "resultado das escritas do merge",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "match_lifecycle_transitions_total", Help: "transições de status de partidas",
		}, []string{"from", "to"}),
		wagersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagers_settled_total", Help: "apostas liquidadas por status final",
		}, []string{"status"}),
		ledgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_errors_total", Help: "falhas ao creditar/estornar no ledger",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_task_runs_total", Help: "execuções de tarefas periódicas",
		}, []string{"task", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "duração das tarefas periódicas",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		busDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_dropped_total", Help: "mensagens descartadas por assinante lento",
		}, []string{"subscriber"}),
		wagersIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagers_ingested_total", Help: "apostas recebidas do tópico bet_placed",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			p.feedRequests, p.quotaRemaining, p.quotaUsed, p.ingestEvents, p.mergeWrites,
			p.transitions, p.wagersSettled, p.ledgerErrors, p.taskRuns, p.taskDuration,
			p.busDropped, p.wagersIngested,
		)
	}
	return p
}

func (p *Pipeline) FeedRequest(sport, outcome string) {
	if p == nil {
		return
	}
	p.feedRequests.WithLabelValues(sport, outcome).Inc()
}

func (p *Pipeline) Quota(remaining, used int) {
	if p == nil {
		return
	}
	p.quotaRemaining.Set(float64(remaining))
	p.quotaUsed.Set(float64(used))
}

func (p *Pipeline) IngestedEvents(sport string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.ingestEvents.WithLabelValues(sport).Add(float64(n))
}

func (p *Pipeline) MergeWrites(result string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.mergeWrites.WithLabelValues(result).Add(float64(n))
}

func (p *Pipeline) Transition(from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *Pipeline) WagerSettled(status string) {
	if p == nil {
		return
	}
	p.wagersSettled.WithLabelValues(status).Inc()
}

func (p *Pipeline) LedgerError() {
	if p == nil {
		return
	}
	p.ledgerErrors.Inc()
}

func (p *Pipeline) TaskRun(task, result string, took time.Duration) {
	if p == nil {
		return
	}
	p.taskRuns.WithLabelValues(task, result).Inc()
	if result != "skipped" {
		p.taskDuration.WithLabelValues(task).Observe(took.Seconds())
	}
}

func (p *Pipeline) BusDropped(subscriber string) {
	if p == nil {
		return
	}
	p.busDropped.WithLabelValues(subscriber).Inc()
}

func (p *Pipeline) WagerIngested(result string) {
	if p == nil {
		return
	}
	p.wagersIngested.WithLabelValues(result).Inc()
}
