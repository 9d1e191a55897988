package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/cache"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/resolver"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/watch"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

const (
	reconnectPause = 3 * time.Second
	// prazo que um despacho tem pra liquidar todas as apostas do evento
	defaultDispatchTimeout = 120 * time.Second
)

// Listener mantém a assinatura de atestações (kind 89) no relay, filtrada
// pelo live set de oracle_event_ids, e despacha cada evento verificado pro
// resolver. Reconecta pra sempre; mudança no live set derruba a conexão e
// re-assina com o filtro novo.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Listener struct {
	Log    *zap.Logger
	Relays []string // rotaciona a cada reconexão
	Watch  *watch.Set
	Resolver interface {
		HandleAttestation(ctx context.Context, relay resolver.RelayPublisher, ev *nostr.Event) error
	}
	Cache *cache.RedisCache // opcional: marcador de atestação já vista

	DispatchTimeout time.Duration // zero usa o default de 120s

	OnReceived  func() // métricas: atestação válida recebida
	OnDiscarded func() // métricas: evento descartado (assinatura inválida)
	OnTimeout   func() // métricas: despacho estourou o prazo
	OnReconnect func() // métricas: reconexão com o relay

	wg      sync.WaitGroup
	attempt int
}

// Start roda o loop de conexão até o contexto morrer. Despachos em voo são
// drenados antes de retornar (cada um já é limitado pelo próprio timeout).
func (l *Listener) Start(ctx context.Context) {
	defer l.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			l.Log.Info("context canceled, stopping listener")
			return
		default:
			if err := l.connectAndListen(ctx); err != nil {
				l.Log.Warn("relay connection closed", zap.Error(err))
				if l.OnReconnect != nil {
					l.OnReconnect()
				}
				time.Sleep(reconnectPause)
			}
		}
	}
}

// connectAndListen abre uma conexão, assina o filtro corrente e processa
// eventos até a conexão cair, o live set mudar ou o contexto encerrar.
// Retorno nil significa "reassinar já" (sem pausa); erro espera a pausa.
func (l *Listener) connectAndListen(ctx context.Context) error {
	url := l.Relays[l.attempt%len(l.Relays)]
	l.attempt++

	client, err := nostr.Dial(ctx, url, l.Log)
	if err != nil {
		return err
	}
	defer client.Close()

	ids, changed := l.Watch.Snapshot()
	filter := nostr.Filter{
		Kinds: []int{nostr.KindOracleAttestation},
		ETags: ids,
	}
	if err := client.Subscribe(uuid.NewString(), filter); err != nil {
		return err
	}
	l.Log.Info("listening for attestations",
		zap.String("relay", url), zap.Int("watched_events", len(ids)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			l.Log.Info("live set changed, resubscribing")
			return nil
		case in, ok := <-client.Events():
			if !ok {
				return client.Err()
			}
			l.dispatch(ctx, client, in.Event)
		case <-client.Done():
			return client.Err()
		}
	}
}

// dispatch valida o evento e solta o resolver numa goroutine com timeout.
// O loop de leitura nunca espera a liquidação terminar.
func (l *Listener) dispatch(ctx context.Context, client *nostr.Client, ev *nostr.Event) {
	if ev == nil || ev.Kind != nostr.KindOracleAttestation {
		return
	}
	if err := ev.CheckSignature(); err != nil {
		// evento forjado ou corrompido: descarte silencioso
		if l.OnDiscarded != nil {
			l.OnDiscarded()
		}
		return
	}
	if l.OnReceived != nil {
		l.OnReceived()
	}

	if l.Cache != nil {
		first, err := l.Cache.MarkAttestationSeen(ctx, ev.ID)
		if err != nil {
			// sem redis segue o jogo: o resolver é idempotente de qualquer forma
			l.Log.Warn("attestation dedupe unavailable", zap.Error(err))
		} else if !first {
			l.Log.Debug("attestation already seen", zap.String("event_id", ev.ID))
			return
		}
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		// o prazo vale mesmo durante shutdown, por isso não herda ctx:
		// despacho em voo termina o que começou
		dctx, cancel := context.WithTimeout(context.Background(), l.timeout())
		defer cancel()

		err := l.Resolver.HandleAttestation(dctx, client, ev)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(dctx.Err(), context.DeadlineExceeded):
			l.Log.Error("resolver dispatch timed out", zap.String("event_id", ev.ID))
			if l.OnTimeout != nil {
				l.OnTimeout()
			}
		default:
			l.Log.Error("resolver dispatch failed",
				zap.String("event_id", ev.ID), zap.Error(err))
		}
	}()
}

func (l *Listener) timeout() time.Duration {
	if l.DispatchTimeout > 0 {
		return l.DispatchTimeout
	}
	return defaultDispatchTimeout
}
