package httpapi_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/dto"
	httpapi "github.com/radieske/dlc-duel-platform-poc/internal/duel-service/http"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/ledger"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/watch"
	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
	"github.com/radieske/dlc-duel-platform-poc/pkg/contracts/events"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

// uuid v4 de verdade: o validador do payload rejeita formas inválidas
const betID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

type fakePublisher struct {
	created []events.BetCreated
	active  []events.BetActive
}

func (f *fakePublisher) PublishBetCreated(_ context.Context, e events.BetCreated) error {
	f.created = append(f.created, e)
	return nil
}

func (f *fakePublisher) PublishBetActive(_ context.Context, e events.BetActive) error {
	f.active = append(f.active, e)
	return nil
}

// fixture do duelo Heads/Tails: A vence em Heads, B em Tails.
type duel struct {
	oracle *dlc.Oracle
	ann    *dlc.OracleAnnouncement

	privA, privB             *btcec.PrivateKey
	pubA, pubB               string
	winA, loseA, winB, loseB nostr.Event

	sigsA, sigsB map[string]string // outcome → hex(64 bytes)
}

func newDuel(t *testing.T) *duel {
	t.Helper()

	oracleKey, err := nostr.GenerateKey()
	require.NoError(t, err)
	d := &duel{oracle: dlc.NewOracle(oracleKey)}

	d.ann, err = d.oracle.Announce("coinflip-1", []string{"Heads", "Tails"}, 1700001000)
	require.NoError(t, err)

	d.privA, err = nostr.GenerateKey()
	require.NoError(t, err)
	d.privB, err = nostr.GenerateKey()
	require.NoError(t, err)
	d.pubA, d.pubB = nostr.PublicKeyHex(d.privA), nostr.PublicKeyHex(d.privB)

	note := func(pubkey, content string) nostr.Event {
		ev := nostr.Event{PubKey: pubkey, CreatedAt: 1700000000, Kind: nostr.KindTextNote, Content: content}
		ev.ID = ev.ComputeID()
		return ev
	}
	d.winA = note(d.pubA, "A leva o pote")
	d.loseA = note(d.pubA, "A paga o pote")
	d.winB = note(d.pubB, "B leva o pote")
	d.loseB = note(d.pubB, "B paga o pote")

	enc := func(priv *btcec.PrivateKey, outcome string, n nostr.Event) string {
		encKey, err := dlc.AdaptorPoint(d.ann.OracleInfo(), outcome)
		require.NoError(t, err)
		id, err := n.IDBytes()
		require.NoError(t, err)
		sig, err := adaptor.Sign(priv, encKey, id[:])
		require.NoError(t, err)
		return hex.EncodeToString(sig.Serialize())
	}
	d.sigsA = map[string]string{
		"Heads": enc(d.privA, "Heads", d.winA),
		"Tails": enc(d.privA, "Tails", d.loseA),
	}
	d.sigsB = map[string]string{
		"Tails": enc(d.privB, "Tails", d.winB),
		"Heads": enc(d.privB, "Heads", d.loseB),
	}
	return d
}

func (d *duel) createBody() dto.CreateBetRequest {
	return dto.CreateBetRequest{
		OracleAnnouncement:    d.ann.EncodeBase64(),
		OracleEventID:         "ann-evt-1",
		WinEvent:              d.winA,
		LoseEvent:             d.loseA,
		CounterpartyWinEvent:  d.winB,
		CounterpartyLoseEvent: d.loseB,
		Sigs:                  d.sigsA,
	}
}

func (d *duel) betRow(t *testing.T, needsReply bool) *sqlmock.Rows {
	t.Helper()
	marshal := func(ev nostr.Event) []byte {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		return b
	}
	return sqlmock.NewRows([]string{
		"id", "oracle_announcement", "oracle_event_id", "user_a", "user_b",
		"win_a", "lose_a", "win_b", "lose_b", "needs_reply",
		"win_outcome_event_id", "lose_outcome_event_id", "created_at",
	}).AddRow(
		betID, d.ann.Serialize(), "ann-evt-1", d.pubA, d.pubB,
		marshal(d.winA), marshal(d.loseA), marshal(d.winB), marshal(d.loseB),
		needsReply, nil, nil, time.Now(),
	)
}

func emptyBetRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "oracle_announcement", "oracle_event_id", "user_a", "user_b",
		"win_a", "lose_a", "win_b", "lose_b", "needs_reply",
		"win_outcome_event_id", "lose_outcome_event_id", "created_at",
	})
}

func newAPI(t *testing.T) (*httpapi.API, sqlmock.Sqlmock, *fakePublisher, *watch.Set) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fp := &fakePublisher{}
	set := watch.NewSet(nil)
	api := &httpapi.API{
		Log:    zap.NewNop(),
		Ledger: ledger.New(zap.NewNop(), repo.NewPostgres(db)),
		Watch:  set,
		Events: fp,
	}
	return api, mock, fp, set
}

func do(t *testing.T, api *httpapi.API, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	return w
}

func TestCreateBetRoundTrip(t *testing.T) {
	d := newDuel(t)
	api, mock, fp, _ := newAPI(t)

	// a ordem dos INSERTs de sigs segue a iteração do map, então as
	// expectativas ficam presas aos argumentos e não à ordem
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sigs").
		WithArgs(sqlmock.AnyArg(), true, true, "Heads", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sigs").
		WithArgs(sqlmock.AnyArg(), true, false, "Tails", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	w := do(t, api, http.MethodPost, "/create-bet", d.createBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())

	var resp dto.CreateBetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.ID)
	require.NoError(t, err)

	require.Len(t, fp.created, 1)
	require.Equal(t, resp.ID, fp.created[0].BetID)
	require.Equal(t, "ann-evt-1", fp.created[0].OracleEventID)
	require.Equal(t, d.pubA, fp.created[0].UserA)
	require.Equal(t, d.pubB, fp.created[0].UserB)
	require.Equal(t, []string{"Heads", "Tails"}, fp.created[0].Outcomes)
}

func TestCreateBetBadPayloads(t *testing.T) {
	d := newDuel(t)

	missingAnn := d.createBody()
	missingAnn.OracleAnnouncement = ""

	badHex := d.createBody()
	badHex.Sigs = map[string]string{"Heads": strings.Repeat("z", 128), "Tails": d.sigsA["Tails"]}

	shortSig := d.createBody()
	shortSig.Sigs = map[string]string{"Heads": "abcd", "Tails": d.sigsA["Tails"]}

	wrongCount := d.createBody()
	wrongCount.Sigs = map[string]string{"Heads": d.sigsA["Heads"]}

	garbageAnn := d.createBody()
	garbageAnn.OracleAnnouncement = "deadbeef"

	cases := []struct {
		name string
		body any
	}{
		{"broken json", `{"oracle_announcement": `},
		{"missing announcement", missingAnn},
		{"sig not hex", badHex},
		{"sig too short", shortSig},
		{"sig count mismatch", wrongCount},
		{"announcement not a commitment", garbageAnn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api, mock, fp, _ := newAPI(t)
			w := do(t, api, http.MethodPost, "/create-bet", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			require.Empty(t, fp.created)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddSigsActivatesBet(t *testing.T) {
	d := newDuel(t)
	api, mock, fp, set := newAPI(t)

	mock.ExpectQuery("FROM bets WHERE id").WithArgs(betID).WillReturnRows(d.betRow(t, true))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT needs_reply FROM bets").WithArgs(betID).
		WillReturnRows(sqlmock.NewRows([]string{"needs_reply"}).AddRow(true))
	mock.ExpectExec("INSERT INTO sigs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sigs").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE bets SET needs_reply").WithArgs(betID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM bets WHERE id").WithArgs(betID).WillReturnRows(d.betRow(t, false))
	mock.ExpectCommit()

	w := do(t, api, http.MethodPost, "/add-sigs", dto.AddSigsRequest{ID: betID, Sigs: d.sigsB})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())

	var resp dto.AddSigsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, betID, resp.ID)
	require.True(t, resp.Active)

	// o evento do oráculo entrou no live set do listener
	ids, _ := set.Snapshot()
	require.Equal(t, []string{"ann-evt-1"}, ids)

	require.Len(t, fp.active, 1)
	require.Equal(t, betID, fp.active[0].BetID)
	require.Equal(t, "ann-evt-1", fp.active[0].OracleEventID)
}

func TestAddSigsConflictOnActiveBet(t *testing.T) {
	d := newDuel(t)
	api, mock, fp, set := newAPI(t)

	mock.ExpectQuery("FROM bets WHERE id").WithArgs(betID).WillReturnRows(d.betRow(t, false))

	w := do(t, api, http.MethodPost, "/add-sigs", dto.AddSigsRequest{ID: betID, Sigs: d.sigsB})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, fp.active)

	ids, _ := set.Snapshot()
	require.Empty(t, ids)
}

func TestAddSigsUnknownBet(t *testing.T) {
	d := newDuel(t)
	api, mock, _, _ := newAPI(t)

	mock.ExpectQuery("FROM bets WHERE id").WithArgs(betID).WillReturnRows(emptyBetRows())

	w := do(t, api, http.MethodPost, "/add-sigs", dto.AddSigsRequest{ID: betID, Sigs: d.sigsB})
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectBetAsParty(t *testing.T) {
	d := newDuel(t)
	api, mock, _, _ := newAPI(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_a, user_b FROM bets").WithArgs(betID).
		WillReturnRows(sqlmock.NewRows([]string{"user_a", "user_b"}).AddRow(d.pubA, d.pubB))
	mock.ExpectExec("DELETE FROM sigs").WithArgs(betID).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM bets").WithArgs(betID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := do(t, api, http.MethodPost, "/reject-bet", dto.RejectBetRequest{ID: betID, Pubkey: d.pubA})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, "true\n", w.Body.String())
}

func TestListPendingProjection(t *testing.T) {
	d := newDuel(t)
	api, mock, _, _ := newAPI(t)

	mock.ExpectQuery("needs_reply=true AND user_b").WithArgs(d.pubB).
		WillReturnRows(d.betRow(t, true))
	mock.ExpectQuery("FROM sigs WHERE bet_id").WithArgs(betID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "bet_id", "is_party_a", "is_win", "outcome", "sig"}).
			AddRow(1, betID, true, true, "Heads", []byte{1}).
			AddRow(2, betID, true, false, "Tails", []byte{2}))

	w := do(t, api, http.MethodGet, "/list-pending?pubkey="+d.pubB, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())

	var got []dto.UserBet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, betID, got[0].ID)
	require.Equal(t, []string{"Heads", "Tails"}, got[0].UserOutcomes)
	// lado vazio sai como lista vazia no JSON, nunca null
	require.NotNil(t, got[0].CounterpartyOutcomes)
	require.Empty(t, got[0].CounterpartyOutcomes)
	require.Contains(t, w.Body.String(), `"counterparty_outcomes":[]`)
	require.Nil(t, got[0].WinOutcomeEventID)
}

func TestListPendingRequiresPubkey(t *testing.T) {
	api, _, _, _ := newAPI(t)
	w := do(t, api, http.MethodGet, "/list-pending", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCountsFromDatabase(t *testing.T) {
	api, mock, _, _ := newAPI(t)

	mock.ExpectQuery("FROM bets").
		WillReturnRows(sqlmock.NewRows([]string{"active", "completed"}).AddRow(3, 2))

	w := do(t, api, http.MethodGet, "/counts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"active":3,"completed":2}`, w.Body.String())
}

func TestEventIDs(t *testing.T) {
	api, mock, _, _ := newAPI(t)

	mock.ExpectQuery("ORDER BY created_at").
		WillReturnRows(sqlmock.NewRows([]string{"oracle_event_id"}).
			AddRow("ann-evt-1").AddRow("ann-evt-2"))

	w := do(t, api, http.MethodGet, "/event-ids", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `["ann-evt-1","ann-evt-2"]`, w.Body.String())
}

func TestHealthCheckAndCORS(t *testing.T) {
	api, _, _, _ := newAPI(t)

	w := do(t, api, http.MethodGet, "/health-check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "true\n", w.Body.String())
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	pre := do(t, api, http.MethodOptions, "/create-bet", nil)
	require.Equal(t, http.StatusNoContent, pre.Code)
	require.Equal(t, "GET, POST", pre.Header().Get("Access-Control-Allow-Methods"))
}
