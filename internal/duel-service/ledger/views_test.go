package ledger_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func sigRows(f *duelFixture, t *testing.T, includeB bool) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{"id", "bet_id", "is_party_a", "is_win", "outcome", "sig"})
	betID := "11111111-1111-1111-1111-111111111111"
	rows.AddRow(1, betID, true, true, "Heads", []byte{0x01})
	rows.AddRow(2, betID, true, false, "Tails", []byte{0x02})
	if includeB {
		rows.AddRow(3, betID, false, true, "Tails", []byte{0x03})
		rows.AddRow(4, betID, false, false, "Heads", []byte{0x04})
	}
	return rows
}

func TestPendingBetsViewForCounterparty(t *testing.T) {
	f := newDuel(t)
	l, mock := newLedger(t)

	mock.ExpectQuery("WHERE needs_reply=true AND user_b").
		WithArgs(f.pubB).
		WillReturnRows(f.storedRow(t, true))
	mock.ExpectQuery("FROM sigs").
		WillReturnRows(sigRows(f, t, false))

	views, err := l.PendingBets(context.Background(), f.pubB)
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	require.Equal(t, f.winA.Content, v.WinA.Content)
	// quem responde ainda não assinou nada, então o lado dele é o conjunto
	// em aberto inteiro
	require.Equal(t, []string{"Heads", "Tails"}, v.UserOutcomes)
	require.Empty(t, v.CounterpartyOutcomes)
	require.Nil(t, v.WinOutcomeEventID)
	require.Nil(t, v.LoseOutcomeEventID)
	require.NotEmpty(t, v.OracleAnnouncement)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveBetsViewPerCaller(t *testing.T) {
	f := newDuel(t)

	for _, tc := range []struct {
		name   string
		caller string
	}{
		{"party a", f.pubA},
		{"party b", f.pubB},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l, mock := newLedger(t)

			mock.ExpectQuery("WHERE needs_reply=false").
				WithArgs(tc.caller).
				WillReturnRows(f.storedRow(t, false))
			mock.ExpectQuery("FROM sigs").
				WillReturnRows(sigRows(f, t, true))

			views, err := l.ActiveBets(context.Background(), tc.caller)
			require.NoError(t, err)
			require.Len(t, views, 1)

			// cada parte assinou o conjunto completo de outcomes
			v := views[0]
			require.Equal(t, []string{"Heads", "Tails"}, v.UserOutcomes)
			require.Equal(t, []string{"Heads", "Tails"}, v.CounterpartyOutcomes)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestActiveBetsCarriesSettlementIDs(t *testing.T) {
	f := newDuel(t)
	l, mock := newLedger(t)

	win, lose := "aa11", "bb22"
	rows := sqlmock.NewRows(betColumns()).AddRow(
		"11111111-1111-1111-1111-111111111111",
		f.ann.Serialize(), "ann-evt-1", f.pubA, f.pubB,
		[]byte(`{"kind":1}`), []byte(`{"kind":1}`), []byte(`{"kind":1}`), []byte(`{"kind":1}`),
		false, win, lose, time.Now(),
	)
	mock.ExpectQuery("WHERE needs_reply=false").
		WillReturnRows(rows)
	mock.ExpectQuery("FROM sigs").
		WillReturnRows(sigRows(f, t, true))

	views, err := l.ActiveBets(context.Background(), f.pubA)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].WinOutcomeEventID)
	require.Equal(t, win, *views[0].WinOutcomeEventID)
	require.NotNil(t, views[0].LoseOutcomeEventID)
	require.Equal(t, lose, *views[0].LoseOutcomeEventID)
}

func TestViewsSkipMalformedRows(t *testing.T) {
	f := newDuel(t)
	l, mock := newLedger(t)

	rows := sqlmock.NewRows(betColumns()).AddRow(
		"22222222-2222-2222-2222-222222222222",
		[]byte{0x00, 0x01}, "ann-evt-x", f.pubA, f.pubB,
		[]byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`),
		true, nil, nil, time.Now(),
	)
	mock.ExpectQuery("WHERE needs_reply=true AND user_b").
		WillReturnRows(rows)

	views, err := l.PendingBets(context.Background(), f.pubB)
	require.NoError(t, err)
	require.Empty(t, views)
}
