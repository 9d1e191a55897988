package ledger

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

// UserBet é a projeção de uma aposta na perspectiva de quem consultou:
// as quatro notas de payout, o anúncio re-encodado e os outcomes de cada
// lado da mesa.
type UserBet struct {
	ID                   string
	WinA                 nostr.Event
	LoseA                nostr.Event
	WinB                 nostr.Event
	LoseB                nostr.Event
	OracleAnnouncement   string
	OracleEventID        string
	UserOutcomes         []string
	CounterpartyOutcomes []string
	WinOutcomeEventID    *string
	LoseOutcomeEventID   *string
}

// PendingBets lista as apostas esperando resposta do pubkey dado. Nessa
// fase só existem as assinaturas da parte A, então os outcomes do lado de
// quem consulta saem das assinaturas de vitória e o resto vai pro outro lado.
func (l *Ledger) PendingBets(ctx context.Context, pubkey string) ([]UserBet, error) {
	bets, err := l.repo.GetPendingFor(ctx, pubkey)
	if err != nil {
		return nil, err
	}

	out := make([]UserBet, 0, len(bets))
	for i := range bets {
		bet := &bets[i]
		view, err := l.pendingView(ctx, bet, pubkey)
		if err != nil {
			l.log.Warn("skipping malformed bet", zap.String("bet_id", bet.ID), zap.Error(err))
			continue
		}
		out = append(out, *view)
	}
	return out, nil
}

func (l *Ledger) pendingView(ctx context.Context, bet *repo.Bet, pubkey string) (*UserBet, error) {
	view, ann, err := baseView(bet)
	if err != nil {
		return nil, err
	}
	all, err := ann.OracleEvent.EnumOutcomes()
	if err != nil {
		return nil, err
	}

	sigs, err := l.repo.SigsByBet(ctx, bet.ID)
	if err != nil {
		return nil, err
	}

	isA := view.WinA.PubKey == pubkey
	mine := make(map[string]bool)
	for _, s := range sigs {
		if s.IsPartyA == isA && s.IsWin {
			mine[s.Outcome] = true
		}
	}
	var mineList, otherList []string
	for _, o := range all {
		if mine[o] {
			mineList = append(mineList, o)
		} else {
			otherList = append(otherList, o)
		}
	}
	if isA {
		view.UserOutcomes, view.CounterpartyOutcomes = mineList, otherList
	} else {
		view.UserOutcomes, view.CounterpartyOutcomes = otherList, mineList
	}

	// aposta pendente nunca tem desfecho
	view.WinOutcomeEventID, view.LoseOutcomeEventID = nil, nil
	return view, nil
}

// ActiveBets lista as apostas já respondidas que envolvem o pubkey dado,
// com os outcomes assinados por cada parte e o desfecho quando houver.
func (l *Ledger) ActiveBets(ctx context.Context, pubkey string) ([]UserBet, error) {
	bets, err := l.repo.GetActiveFor(ctx, pubkey)
	if err != nil {
		return nil, err
	}

	out := make([]UserBet, 0, len(bets))
	for i := range bets {
		bet := &bets[i]
		view, err := l.activeView(ctx, bet, pubkey)
		if err != nil {
			l.log.Warn("skipping malformed bet", zap.String("bet_id", bet.ID), zap.Error(err))
			continue
		}
		out = append(out, *view)
	}
	return out, nil
}

func (l *Ledger) activeView(ctx context.Context, bet *repo.Bet, pubkey string) (*UserBet, error) {
	view, _, err := baseView(bet)
	if err != nil {
		return nil, err
	}

	sigs, err := l.repo.SigsByBet(ctx, bet.ID)
	if err != nil {
		return nil, err
	}

	var outcomesA, outcomesB []string
	seenA, seenB := make(map[string]bool), make(map[string]bool)
	for _, s := range sigs {
		if s.IsPartyA && !seenA[s.Outcome] {
			seenA[s.Outcome] = true
			outcomesA = append(outcomesA, s.Outcome)
		}
		if !s.IsPartyA && !seenB[s.Outcome] {
			seenB[s.Outcome] = true
			outcomesB = append(outcomesB, s.Outcome)
		}
	}
	sort.Strings(outcomesA)
	sort.Strings(outcomesB)

	if bet.UserA == pubkey {
		view.UserOutcomes, view.CounterpartyOutcomes = outcomesA, outcomesB
	} else {
		view.UserOutcomes, view.CounterpartyOutcomes = outcomesB, outcomesA
	}

	view.WinOutcomeEventID = bet.WinOutcomeEventID
	view.LoseOutcomeEventID = bet.LoseOutcomeEventID
	return view, nil
}

func baseView(bet *repo.Bet) (*UserBet, *dlc.OracleAnnouncement, error) {
	ann, err := dlc.ReadOracleAnnouncement(bet.OracleAnnouncement)
	if err != nil {
		return nil, nil, err
	}

	view := &UserBet{
		ID:                 bet.ID,
		OracleAnnouncement: ann.EncodeBase64(),
		OracleEventID:      bet.OracleEventID,
	}
	for _, pair := range []struct {
		raw []byte
		dst *nostr.Event
	}{
		{bet.WinA, &view.WinA},
		{bet.LoseA, &view.LoseA},
		{bet.WinB, &view.WinB},
		{bet.LoseB, &view.LoseB},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, nil, err
		}
	}
	return view, ann, nil
}

// Counts devolve o agregado de apostas ativas e liquidadas.
func (l *Ledger) Counts(ctx context.Context) (active, completed int64, err error) {
	return l.repo.Counts(ctx)
}

// EventIDs lista os oracle_event_ids de todas as apostas registradas.
func (l *Ledger) EventIDs(ctx context.Context) ([]string, error) {
	return l.repo.AllEventIDs(ctx)
}

// UnresolvedEventIDs devolve os ids que semeiam o live set no boot.
func (l *Ledger) UnresolvedEventIDs(ctx context.Context) ([]string, error) {
	return l.repo.UnresolvedEventIDs(ctx)
}
