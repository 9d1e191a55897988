package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
	"github.com/radieske/dlc-duel-platform-poc/pkg/contracts/events"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

// RelayPublisher manda a nota de payout liquidada de volta pro relay. O
// listener passa o cliente da conexão corrente a cada despacho.
type RelayPublisher interface {
	Publish(ctx context.Context, ev *nostr.Event) (string, error)
}

// Resolver liquida apostas a partir de atestações de oráculo: acha as
// apostas penduradas no evento atestado, decripta a assinatura de cada
// parte e completa a nota de payout correspondente.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Resolver struct {
	Log  *zap.Logger
	Repo *repo.Postgres

	Events interface {
		PublishBetSettled(context.Context, events.BetSettled) error
		PublishAttestationFailed(context.Context, events.AttestationFailed) error
	}

	OnSettled   func()       // métricas: aposta liquidada com payout
	OnNoPayout  func()       // métricas: liquidada no sentinela (ninguém cobriu o outcome)
	OnPublished func()       // métricas: nota publicada no relay
	OnError     func(string) // métricas por fase
}

// HandleAttestation processa um evento kind 89 já verificado pelo listener.
// Erros por aposta são registrados e mandados pra DLQ sem interromper as
// outras apostas do mesmo evento.
func (r *Resolver) HandleAttestation(ctx context.Context, relay RelayPublisher, ev *nostr.Event) error {
	eTag := ev.FirstTagValue("e")
	if eTag == "" {
		r.fail(ctx, "", ev, "attestation without e tag")
		return errors.New("attestation without e tag")
	}

	att, err := dlc.ParseOracleAttestation(ev.Content)
	if err != nil {
		r.fail(ctx, eTag, ev, "parse: "+err.Error())
		return fmt.Errorf("parse attestation: %w", err)
	}
	if err := att.Validate(); err != nil {
		r.fail(ctx, eTag, ev, "validate: "+err.Error())
		return fmt.Errorf("validate attestation: %w", err)
	}

	bets, err := r.Repo.GetByOracleEvent(ctx, eTag)
	if err != nil {
		if r.OnError != nil {
			r.OnError("db_lookup")
		}
		return fmt.Errorf("load bets: %w", err)
	}

	r.Log.Info("attestation received",
		zap.String("oracle_event_id", eTag),
		zap.String("outcome", att.Outcomes[0]),
		zap.Int("bets", len(bets)))

	for i := range bets {
		bet := &bets[i]
		if err := r.handleBet(ctx, relay, bet, att); err != nil {
			r.Log.Error("error handling bet",
				zap.String("bet_id", bet.ID), zap.Error(err))
			r.failBet(ctx, eTag, ev, bet.ID, err.Error())
		}
	}
	return nil
}

// handleBet roda a máquina de liquidação de uma aposta. Os dois lados são
// processados de forma independente: falha num lado não impede o outro.
func (r *Resolver) handleBet(ctx context.Context, relay RelayPublisher, bet *repo.Bet, att *dlc.OracleAttestation) error {
	if bet.NeedsReply {
		// pendente não entra no casamento de atestações
		r.Log.Debug("skipping pending bet", zap.String("bet_id", bet.ID))
		return nil
	}
	if bet.Settled() {
		// reentrega de atestação sobre aposta já liquidada: nada a fazer
		r.Log.Debug("bet already settled", zap.String("bet_id", bet.ID))
		return nil
	}

	// só o primeiro outcome atestado interessa (evento enumerado simples)
	outcome := att.Outcomes[0]
	scalar, err := dlc.ExtractSigningScalar(att.Signatures[0])
	if err != nil {
		if r.OnError != nil {
			r.OnError("scalar")
		}
		return err
	}

	sigA, err := r.Repo.SigByParams(ctx, bet.ID, outcome, true)
	if err != nil {
		return fmt.Errorf("lookup sig a: %w", err)
	}
	sigB, err := r.Repo.SigByParams(ctx, bet.ID, outcome, false)
	if err != nil {
		return fmt.Errorf("lookup sig b: %w", err)
	}

	if sigA == nil && sigB == nil {
		// ninguém cobriu o outcome atestado: liquida no sentinela, sem payout
		zero := repo.ZeroEventID
		if err := r.Repo.SetOutcome(ctx, bet.ID, &zero, &zero); err != nil {
			return fmt.Errorf("set sentinel outcome: %w", err)
		}
		r.Log.Warn("no sigs cover attested outcome",
			zap.String("bet_id", bet.ID), zap.String("outcome", outcome))
		if r.OnNoPayout != nil {
			r.OnNoPayout()
		}
		if r.Events != nil {
			_ = r.Events.PublishBetSettled(ctx, events.BetSettled{
				BetID:         bet.ID,
				OracleEventID: bet.OracleEventID,
				Outcome:       outcome,
				NoPayout:      true,
			})
		}
		return nil
	}

	var winID, loseID string
	var sideErrs []string

	for _, side := range []struct {
		label string
		sig   *repo.Sig
	}{
		{"side_a", sigA},
		{"side_b", sigB},
	} {
		if side.sig == nil {
			r.Log.Warn("sig not found for side",
				zap.String("bet_id", bet.ID), zap.String("side", side.label))
			continue
		}
		alreadyDone := (side.sig.IsWin && bet.WinOutcomeEventID != nil) ||
			(!side.sig.IsWin && bet.LoseOutcomeEventID != nil)
		if alreadyDone {
			// lado liquidado numa entrega anterior; não republica
			continue
		}
		id, err := r.settleSide(ctx, relay, bet, side.sig, scalar)
		if err != nil {
			r.Log.Error("settle side failed",
				zap.String("bet_id", bet.ID), zap.String("side", side.label), zap.Error(err))
			if r.OnError != nil {
				r.OnError(side.label)
			}
			sideErrs = append(sideErrs, side.label+": "+err.Error())
			continue
		}
		if side.sig.IsWin {
			winID = id
		} else {
			loseID = id
		}
	}

	if len(sideErrs) > 0 {
		return errors.New(strings.Join(sideErrs, "; "))
	}

	// completa os ids com o que já estava gravado, pro evento de liquidação
	// sair inteiro mesmo quando um lado veio de entrega anterior
	if winID == "" && bet.WinOutcomeEventID != nil {
		winID = *bet.WinOutcomeEventID
	}
	if loseID == "" && bet.LoseOutcomeEventID != nil {
		loseID = *bet.LoseOutcomeEventID
	}

	if winID != "" && loseID != "" {
		if r.OnSettled != nil {
			r.OnSettled()
		}
		if r.Events != nil {
			_ = r.Events.PublishBetSettled(ctx, events.BetSettled{
				BetID:              bet.ID,
				OracleEventID:      bet.OracleEventID,
				Outcome:            outcome,
				WinOutcomeEventID:  winID,
				LoseOutcomeEventID: loseID,
			})
		}
	}
	return nil
}

// settleSide decripta a assinatura de um lado com o escalar atestado,
// completa a nota de payout e registra o id liquidado. Devolve o id da
// nota assinada.
func (r *Resolver) settleSide(ctx context.Context, relay RelayPublisher, bet *repo.Bet,
	sig *repo.Sig, scalar *secp256k1.ModNScalar) (string, error) {

	encSig, err := adaptor.ParseSignature(sig.Sig)
	if err != nil {
		return "", fmt.Errorf("stored sig: %w", err)
	}
	final := encSig.Decrypt(scalar)

	var raw []byte
	switch {
	case sig.IsPartyA && sig.IsWin:
		raw = bet.WinA
	case sig.IsPartyA && !sig.IsWin:
		raw = bet.LoseA
	case !sig.IsPartyA && sig.IsWin:
		raw = bet.WinB
	default:
		raw = bet.LoseB
	}

	var note nostr.Event
	if err := json.Unmarshal(raw, &note); err != nil {
		return "", fmt.Errorf("stored payout note: %w", err)
	}

	// AddSignature recusa se a assinatura decriptada não verifica contra o
	// autor da nota: escalar errado morre aqui
	signed, err := note.AddSignature(final)
	if err != nil {
		return "", fmt.Errorf("attach signature: %w", err)
	}

	if sig.IsWin {
		err = r.Repo.SetOutcome(ctx, bet.ID, &signed.ID, nil)
	} else {
		err = r.Repo.SetOutcome(ctx, bet.ID, nil, &signed.ID)
	}
	if err != nil {
		return "", fmt.Errorf("record outcome: %w", err)
	}

	if _, err := relay.Publish(ctx, signed); err != nil {
		return "", fmt.Errorf("publish payout note: %w", err)
	}
	r.Log.Info("payout note published",
		zap.String("bet_id", bet.ID),
		zap.String("event_id", signed.ID),
		zap.Bool("is_win", sig.IsWin))
	if r.OnPublished != nil {
		r.OnPublished()
	}
	return signed.ID, nil
}

// fail registra a falha da atestação inteira na DLQ.
func (r *Resolver) fail(ctx context.Context, oracleEventID string, ev *nostr.Event, reason string) {
	r.failBet(ctx, oracleEventID, ev, "", reason)
}

func (r *Resolver) failBet(ctx context.Context, oracleEventID string, ev *nostr.Event, betID, reason string) {
	if r.OnError != nil {
		r.OnError("attestation")
	}
	if r.Events == nil {
		return
	}
	_ = r.Events.PublishAttestationFailed(ctx, events.AttestationFailed{
		OracleEventID:      oracleEventID,
		AttestationEventID: ev.ID,
		BetID:              betID,
		Reason:             reason,
		Payload:            ev.Content,
	})
}
