package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/cache"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/dto"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/ledger"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/watch"
	"github.com/radieske/dlc-duel-platform-poc/pkg/contracts/events"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
)

// API expõe a superfície REST do serviço de duelos. Os handlers só
// decodificam e delegam: verificação e persistência moram no ledger.
type API struct {
	Log    *zap.Logger
	Ledger *ledger.Ledger
	Watch  *watch.Set
	Cache  *cache.RedisCache // opcional: cache curto de counts
	Events interface {
		PublishBetCreated(context.Context, events.BetCreated) error
		PublishBetActive(context.Context, events.BetActive) error
	}
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)
	r.Get("/health-check", a.healthCheck)
	r.Post("/create-bet", a.createBet)
	r.Post("/add-sigs", a.addSigs)
	r.Post("/reject-bet", a.rejectBet)
	r.Get("/list-pending", a.listPending)   // apostas esperando resposta do pubkey
	r.Get("/list-active", a.listActive)     // apostas já respondidas do pubkey
	r.Get("/counts", a.getCounts)           // agregado ativo/liquidado
	r.Get("/event-ids", a.getEventIDs)      // oracle_event_ids registrados
	return r
}

// cors libera browser clients: qualquer origem, GET/POST com content-type.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, true)
}

func (a *API) createBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	sigs, err := decodeSigs(req.Sigs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	id, err := a.Ledger.CreateBet(r.Context(), ledger.CreateRequest{
		Announcement:  req.OracleAnnouncement,
		OracleEventID: req.OracleEventID,
		WinA:          req.WinEvent,
		LoseA:         req.LoseEvent,
		WinB:          req.CounterpartyWinEvent,
		LoseB:         req.CounterpartyLoseEvent,
		Sigs:          sigs,
	})
	if err != nil {
		a.fail(w, "create bet", err)
		return
	}

	_ = a.Events.PublishBetCreated(r.Context(), events.BetCreated{
		BetID:         id,
		OracleEventID: req.OracleEventID,
		UserA:         req.WinEvent.PubKey,
		UserB:         req.CounterpartyWinEvent.PubKey,
		Outcomes:      outcomeNames(req.Sigs),
	})

	writeJSON(w, http.StatusOK, dto.CreateBetResponse{ID: id})
}

func (a *API) addSigs(w http.ResponseWriter, r *http.Request) {
	var req dto.AddSigsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	sigs, err := decodeSigs(req.Sigs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	bet, err := a.Ledger.AddReply(r.Context(), req.ID, sigs)
	if err != nil {
		a.fail(w, "add sigs", err)
		return
	}

	// a aposta ficou ativa: o listener passa a observar o evento dela
	if a.Watch.Add(bet.OracleEventID) {
		a.Log.Info("oracle event added to live set",
			zap.String("oracle_event_id", bet.OracleEventID))
	}

	_ = a.Events.PublishBetActive(r.Context(), events.BetActive{
		BetID:         bet.ID,
		OracleEventID: bet.OracleEventID,
	})

	writeJSON(w, http.StatusOK, dto.AddSigsResponse{ID: bet.ID, Active: true})
}

func (a *API) rejectBet(w http.ResponseWriter, r *http.Request) {
	var req dto.RejectBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	if err := a.Ledger.Reject(r.Context(), req.ID, req.Pubkey); err != nil {
		a.fail(w, "reject bet", err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (a *API) listPending(w http.ResponseWriter, r *http.Request) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeJSON(w, http.StatusBadRequest, errBody("pubkey required"))
		return
	}

	bets, err := a.Ledger.PendingBets(r.Context(), pubkey)
	if err != nil {
		a.fail(w, "list pending", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserBets(bets))
}

func (a *API) listActive(w http.ResponseWriter, r *http.Request) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeJSON(w, http.StatusBadRequest, errBody("pubkey required"))
		return
	}

	bets, err := a.Ledger.ActiveBets(r.Context(), pubkey)
	if err != nil {
		a.fail(w, "list active", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserBets(bets))
}

// getCounts serve o agregado, preferencialmente do cache
func (a *API) getCounts(w http.ResponseWriter, r *http.Request) {
	if a.Cache != nil {
		if c, ok := a.Cache.GetCounts(r.Context()); ok {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}

	active, completed, err := a.Ledger.Counts(r.Context())
	if err != nil {
		a.fail(w, "counts", err)
		return
	}
	c := cache.Counts{Active: active, Completed: completed}
	if a.Cache != nil {
		_ = a.Cache.SetCounts(r.Context(), c)
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) getEventIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := a.Ledger.EventIDs(r.Context())
	if err != nil {
		a.fail(w, "event ids", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// fail traduz os erros do ledger pra status HTTP; o resto vira 500 logado.
func (a *API) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("bet not found"))
	case errors.Is(err, repo.ErrAlreadyReplied), errors.Is(err, repo.ErrAlreadySettled):
		writeJSON(w, http.StatusConflict, errBody(err.Error()))
	case errors.Is(err, ledger.ErrVerificationFailed),
		errors.Is(err, ledger.ErrOutcomeCountMismatch),
		errors.Is(err, dlc.ErrMalformedCommitment),
		errors.Is(err, dlc.ErrUnsupportedDescriptor),
		errors.Is(err, dlc.ErrInvalidScalar):
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
	default:
		a.Log.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody(err.Error()))
	}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeSigs converte o mapa outcome→hex num lote outcome→bytes.
func decodeSigs(in map[string]string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(in))
	for outcome, h := range in {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) != 64 {
			return nil, fmt.Errorf("sig for outcome %q is not 64-byte hex", outcome)
		}
		out[outcome] = b
	}
	return out, nil
}

func outcomeNames(sigs map[string]string) []string {
	out := make([]string, 0, len(sigs))
	for o := range sigs {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

func toUserBets(in []ledger.UserBet) []dto.UserBet {
	out := make([]dto.UserBet, 0, len(in))
	for _, b := range in {
		out = append(out, dto.UserBet{
			ID:                   b.ID,
			WinA:                 b.WinA,
			LoseA:                b.LoseA,
			WinB:                 b.WinB,
			LoseB:                b.LoseB,
			OracleAnnouncement:   b.OracleAnnouncement,
			OracleEventID:        b.OracleEventID,
			UserOutcomes:         notNull(b.UserOutcomes),
			CounterpartyOutcomes: notNull(b.CounterpartyOutcomes),
			WinOutcomeEventID:    b.WinOutcomeEventID,
			LoseOutcomeEventID:   b.LoseOutcomeEventID,
		})
	}
	return out
}

// notNull troca slice nil por vazio pro JSON sair como lista, não null.
func notNull(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
