package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/dlc-duel-platform-poc/internal/shared/kafka"
	"github.com/radieske/dlc-duel-platform-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de ciclo de vida das apostas e a DLQ
// de atestações. Quem chama trata como fire-and-forget: falha de broker
// vira log, nunca derruba o fluxo principal.
type KafkaPublisher struct {
	Created *kafka.Writer
	Active  *kafka.Writer
	Settled *kafka.Writer
	DLQ     *kafka.Writer
}

func (p *KafkaPublisher) PublishBetCreated(ctx context.Context, e events.BetCreated) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return sharedkafka.WriteJSON(ctx, p.Created, e.BetID, b)
}

func (p *KafkaPublisher) PublishBetActive(ctx context.Context, e events.BetActive) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return sharedkafka.WriteJSON(ctx, p.Active, e.BetID, b)
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return sharedkafka.WriteJSON(ctx, p.Settled, e.BetID, b)
}

func (p *KafkaPublisher) PublishAttestationFailed(ctx context.Context, e events.AttestationFailed) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return sharedkafka.WriteJSON(ctx, p.DLQ, e.OracleEventID, b)
}
