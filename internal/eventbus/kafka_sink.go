package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink grava cada tipo de evento no seu tópico (trilha durável/auditoria).
// A chave da mensagem é a Key do evento, mantendo a ordem por partida/usuário.
type KafkaSink struct {
	w      messageWriter
	topics map[events.Type]string
}

func NewKafkaSink(w *kafka.Writer, topics map[events.Type]string) *KafkaSink {
	return &KafkaSink{w: w, topics: topics}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, env events.Envelope) error {
	topic, ok := s.topics[env.Type]
	if !ok {
		return fmt.Errorf("no topic for event type %s", env.Type)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.w.WriteMessages(wctx, kafka.Message{
		Topic: topic,
		Key:   []byte(env.Key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
			{Key: "event_id", Value: []byte(env.ID)},
		},
	})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
