package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

var (
	// ErrVerificationFailed: alguma assinatura encriptada não cobre nem a
	// mensagem de vitória nem a de derrota sob o adaptor point do outcome
	ErrVerificationFailed = errors.New("adaptor signature verification failed")

	// ErrOutcomeCountMismatch: o lote de assinaturas não cobre exatamente
	// os outcomes do anúncio
	ErrOutcomeCountMismatch = errors.New("signature count does not match announcement outcomes")
)

// Ledger amarra a verificação criptográfica com a persistência das apostas.
// Os handlers HTTP só decodificam o payload e delegam pra cá.
type Ledger struct {
	log  *zap.Logger
	repo *repo.Postgres
}

func New(log *zap.Logger, r *repo.Postgres) *Ledger {
	return &Ledger{log: log, repo: r}
}

// CreateRequest é o pedido de criação já decodificado: anúncio em TLV
// (hex ou base64), as quatro notas de payout sem assinatura e o lote de
// adaptor signatures da parte A, uma por outcome.
type CreateRequest struct {
	Announcement  string
	OracleEventID string
	WinA          nostr.Event
	LoseA         nostr.Event
	WinB          nostr.Event
	LoseB         nostr.Event
	Sigs          map[string][]byte
}

// CreateBet valida o anúncio, classifica as assinaturas da parte A e grava
// a aposta pendente. Devolve o id gerado.
func (l *Ledger) CreateBet(ctx context.Context, req CreateRequest) (string, error) {
	ann, err := dlc.ParseOracleAnnouncement(req.Announcement)
	if err != nil {
		return "", fmt.Errorf("parse announcement: %w", err)
	}
	if err := ann.Validate(); err != nil {
		return "", fmt.Errorf("validate announcement: %w", err)
	}

	outcomes, err := ann.OracleEvent.EnumOutcomes()
	if err != nil {
		return "", err
	}
	if len(req.Sigs) != len(outcomes) {
		return "", fmt.Errorf("%w: got %d, want %d", ErrOutcomeCountMismatch, len(req.Sigs), len(outcomes))
	}

	// os ids que vieram no payload são ignorados: a forma canônica de cada
	// nota é recomputada aqui antes de qualquer verificação
	winA, loseA := canonical(req.WinA), canonical(req.LoseA)
	winB, loseB := canonical(req.WinB), canonical(req.LoseB)

	signer, winMsg, loseMsg, err := verificationInputs(winA, loseA)
	if err != nil {
		return "", err
	}

	rows, err := classifyBatch(req.Sigs, ann.OracleInfo(), signer, winMsg, loseMsg, true)
	if err != nil {
		return "", err
	}

	bet := &repo.Bet{
		OracleAnnouncement: ann.Serialize(),
		OracleEventID:      req.OracleEventID,
		UserA:              winA.PubKey,
		UserB:              winB.PubKey,
		WinA:               marshalEvent(winA),
		LoseA:              marshalEvent(loseA),
		WinB:               marshalEvent(winB),
		LoseB:              marshalEvent(loseB),
	}

	id, err := l.repo.CreateBet(ctx, bet, rows)
	if err != nil {
		return "", fmt.Errorf("persist bet: %w", err)
	}

	l.log.Info("bet created",
		zap.String("bet_id", id),
		zap.String("oracle_event_id", req.OracleEventID),
		zap.Int("outcomes", len(outcomes)))
	return id, nil
}

// AddReply verifica o lote de assinaturas da parte B contra as notas dela
// e ativa a aposta. Devolve a aposta já ativa pro chamador alimentar o
// live set do listener.
func (l *Ledger) AddReply(ctx context.Context, betID string, sigs map[string][]byte) (*repo.Bet, error) {
	bet, err := l.repo.GetByID(ctx, betID)
	if err != nil {
		return nil, err
	}
	if !bet.NeedsReply {
		return nil, repo.ErrAlreadyReplied
	}

	ann, err := dlc.ReadOracleAnnouncement(bet.OracleAnnouncement)
	if err != nil {
		return nil, fmt.Errorf("stored announcement: %w", err)
	}
	outcomes, err := ann.OracleEvent.EnumOutcomes()
	if err != nil {
		return nil, err
	}
	if len(sigs) != len(outcomes) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrOutcomeCountMismatch, len(sigs), len(outcomes))
	}

	var winB, loseB nostr.Event
	if err := json.Unmarshal(bet.WinB, &winB); err != nil {
		return nil, fmt.Errorf("stored win_b: %w", err)
	}
	if err := json.Unmarshal(bet.LoseB, &loseB); err != nil {
		return nil, fmt.Errorf("stored lose_b: %w", err)
	}

	signer, winMsg, loseMsg, err := verificationInputs(winB, loseB)
	if err != nil {
		return nil, err
	}

	rows, err := classifyBatch(sigs, ann.OracleInfo(), signer, winMsg, loseMsg, false)
	if err != nil {
		return nil, err
	}

	active, err := l.repo.AddReply(ctx, betID, rows)
	if err != nil {
		return nil, err
	}

	l.log.Info("bet activated",
		zap.String("bet_id", betID),
		zap.String("oracle_event_id", active.OracleEventID))
	return active, nil
}

// Reject descarta uma aposta pendente a pedido de uma das partes. Pedido
// de fora é ignorado em silêncio, igual a um id inexistente.
func (l *Ledger) Reject(ctx context.Context, betID, requester string) error {
	if err := l.repo.Reject(ctx, betID, requester); err != nil {
		return err
	}
	l.log.Info("bet reject processed", zap.String("bet_id", betID))
	return nil
}

// canonical limpa a nota recebida: id recomputado, sem assinatura.
func canonical(ev nostr.Event) nostr.Event {
	ev.Sig = ""
	ev.ID = ev.ComputeID()
	return ev
}

// verificationInputs extrai a chave de verificação (autor das notas) e as
// duas mensagens candidatas (ids das notas de vitória e derrota).
func verificationInputs(win, lose nostr.Event) (*btcec.PublicKey, []byte, []byte, error) {
	pubBytes, err := hex.DecodeString(win.PubKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad signer pubkey", ErrVerificationFailed)
	}
	signer, err := adaptor.LiftX(pubBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad signer pubkey", ErrVerificationFailed)
	}

	winID, err := win.IDBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	loseID, err := lose.IDBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	return signer, winID[:], loseID[:], nil
}

// classifyBatch roda a classificação outcome a outcome e monta as linhas
// prontas pra persistir. Qualquer assinatura ambígua ou inválida derruba o
// lote inteiro.
func classifyBatch(sigs map[string][]byte, info dlc.OracleInfo, signer *btcec.PublicKey,
	winMsg, loseMsg []byte, isPartyA bool) ([]repo.Sig, error) {

	rows := make([]repo.Sig, 0, len(sigs))
	for outcome, raw := range sigs {
		sig, err := adaptor.ParseSignature(raw)
		if err != nil {
			return nil, fmt.Errorf("outcome %q: %w", outcome, err)
		}
		side := dlc.ClassifySignature(sig, info, outcome, signer, winMsg, loseMsg)
		if side == dlc.SideInvalid {
			return nil, fmt.Errorf("%w: outcome %q", ErrVerificationFailed, outcome)
		}
		rows = append(rows, repo.Sig{
			IsPartyA: isPartyA,
			IsWin:    side.IsWin(),
			Outcome:  outcome,
			Sig:      raw,
		})
	}
	return rows, nil
}

func marshalEvent(ev nostr.Event) []byte {
	// Event só tem campos serializáveis, o erro aqui é teórico
	b, _ := json.Marshal(ev)
	return b
}
