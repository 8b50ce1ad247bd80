package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/metrics"
)

// Task é uma tarefa periódica independente. Schedule aceita a sintaxe do cron
// ("*/5 * * * *") ou descritores ("@every 2m"); vazio significa só disparo manual.
type Task struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Result string

const (
	ResultOK      Result = "ok"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

type entry struct {
	task    Task
	running atomic.Bool
}

// Runner dispara as tarefas com um guard atômico por tarefa: um disparo que chega
// enquanto a execução anterior ainda roda é pulado, nunca empilhado.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
	log     *zap.Logger
	metrics *metrics.Pipeline

	mu    sync.RWMutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

func New(baseCtx context.Context, log *zap.Logger, m *metrics.Pipeline) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(),
		baseCtx: baseCtx,
		log:     log.Named("scheduler"),
		metrics: m,
		tasks:   map[string]*entry{},
	}
}

// Register adiciona a tarefa e, se houver Schedule, agenda no cron
func (r *Runner) Register(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task requires name and run func")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.Name]; ok {
		return fmt.Errorf("task %s already registered", t.Name)
	}

	if t.Schedule != "" {
		name := t.Name
		if _, err := r.cron.AddFunc(t.Schedule, func() { r.Trigger(r.baseCtx, name) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", t.Name, t.Schedule, err)
		}
	}
	r.tasks[t.Name] = &entry{task: t}
	return nil
}

// Trigger executa a tarefa agora, no goroutine de quem chamou
func (r *Runner) Trigger(ctx context.Context, name string) Result {
	r.mu.RLock()
	e, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("trigger for unknown task", zap.String("task", name))
		return ResultFailed
	}

	if !e.running.CompareAndSwap(false, true) {
		r.log.Warn("task already running, skipping", zap.String("task", name))
		r.metrics.TaskRun(name, string(ResultSkipped), 0)
		return ResultSkipped
	}
	defer e.running.Store(false)

	runCtx := ctx
	if e.task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.task.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.task.Run(runCtx)
	took := time.Since(start)

	if err != nil {
		r.log.Error("task failed", zap.String("task", name), zap.Duration("took", took), zap.Error(err))
		r.metrics.TaskRun(name, string(ResultFailed), took)
		return ResultFailed
	}
	r.log.Debug("task done", zap.String("task", name), zap.Duration("took", took))
	r.metrics.TaskRun(name, string(ResultOK), took)
	return ResultOK
}

// Go dispara a tarefa em background (gatilhos por evento)
func (r *Runner) Go(name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Trigger(r.baseCtx, name)
	}()
}

func (r *Runner) Running(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[name]
	return ok && e.running.Load()
}

func (r *Runner) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

func (r *Runner) Tasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Runner) Start() {
	r.log.Info("scheduler started", zap.Strings("tasks", r.Tasks()))
	r.cron.Start()
}

// Stop para o cron e aguarda as execuções em andamento
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.log.Info("scheduler stopped")
}
