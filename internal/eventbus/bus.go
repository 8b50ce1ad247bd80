package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

// Bus é o pub/sub local do processo. Publish nunca bloqueia: cada assinante tem
// um buffer próprio e, cheio, a mensagem é descartada só para ele.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup

	buffer  int
	log     *zap.Logger
	metrics *metrics.Pipeline
	now     func() time.Time
}

// Subscription recebe os envelopes dos tipos assinados (todos, se nenhum foi informado)
type Subscription struct {
	name  string
	types map[events.Type]struct{}
	ch    chan events.Envelope

	mu      sync.Mutex
	dropped uint64
}

func (s *Subscription) Name() string { return s.name }

func (s *Subscription) C() <-chan events.Envelope { return s.ch }

// Dropped é o total de mensagens descartadas por buffer cheio
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) wants(t events.Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func New(buffer int, log *zap.Logger, m *metrics.Pipeline) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		subs:    map[*Subscription]struct{}{},
		buffer:  buffer,
		log:     log.Named("eventbus"),
		metrics: m,
		now:     time.Now,
	}
}

func (b *Bus) Subscribe(name string, types ...events.Type) *Subscription {
	s := &Subscription{name: name, ch: make(chan events.Envelope, b.buffer)}
	if len(types) > 0 {
		s.types = make(map[events.Type]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Publish é fire-and-forget; sem assinantes a mensagem simplesmente some
func (b *Bus) Publish(e events.Event) {
	env, err := events.Wrap(e, b.now())
	if err != nil {
		b.log.Warn("event not published", zap.String("type", string(e.Type())), zap.Error(err))
		return
	}
	b.PublishEnvelope(env)
}

func (b *Bus) PublishEnvelope(env events.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for s := range b.subs {
		if !s.wants(env.Type) {
			continue
		}
		select {
		case s.ch <- env:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			b.metrics.BusDropped(s.name)
			b.log.Debug("subscriber buffer full, dropping event",
				zap.String("subscriber", s.name),
				zap.String("type", string(env.Type)),
				zap.String("key", env.Key))
		}
	}
}

// Sink entrega envelopes para fora do processo (Redis Pub/Sub, Kafka)
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env events.Envelope) error
}

// Attach assina o sink e entrega em uma goroutine própria até ctx terminar ou o bus fechar.
// Falha de entrega é logada e a mensagem segue adiante.
func (b *Bus) Attach(ctx context.Context, sink Sink, types ...events.Type) *Subscription {
	sub := b.Subscribe(sink.Name(), types...)
	log := b.log.With(zap.String("sink", sink.Name()))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.C():
				if !ok {
					return
				}
				if err := sink.Deliver(ctx, env); err != nil {
					log.Warn("sink delivery failed",
						zap.String("type", string(env.Type)),
						zap.String("event_id", env.ID),
						zap.Error(err))
				}
			}
		}
	}()
	return sub
}

// Handle roda fn para cada envelope dos tipos informados (consumidores internos)
func (b *Bus) Handle(ctx context.Context, name string, fn func(ctx context.Context, env events.Envelope), types ...events.Type) *Subscription {
	return b.Attach(ctx, handlerSink{name: name, fn: fn}, types...)
}

type handlerSink struct {
	name string
	fn   func(ctx context.Context, env events.Envelope)
}

func (h handlerSink) Name() string { return h.name }

func (h handlerSink) Deliver(ctx context.Context, env events.Envelope) error {
	h.fn(ctx, env)
	return nil
}

// Close fecha todas as assinaturas e espera os sinks terminarem
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for s := range b.subs {
			close(s.ch)
			delete(b.subs, s)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}
