package nostr_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

func testKey(t *testing.T, seed byte) *btcec.PrivateKey {
	t.Helper()
	b := make([]byte, 32)
	b[31] = seed
	priv, _ := btcec.PrivKeyFromBytes(b)
	require.NotNil(t, priv)
	return priv
}

func TestEventSignAndCheck(t *testing.T) {
	priv := testKey(t, 7)

	ev := &nostr.Event{
		CreatedAt: 1700000000,
		Kind:      nostr.KindTextNote,
		Tags:      []nostr.Tag{{"e", "abc"}},
		Content:   "paguei a aposta",
	}
	require.NoError(t, ev.Sign(priv))

	require.Len(t, ev.ID, 64)
	require.Equal(t, nostr.PublicKeyHex(priv), ev.PubKey)
	require.NoError(t, ev.CheckSignature())
}

func TestCheckSignatureRejectsTampering(t *testing.T) {
	priv := testKey(t, 9)

	base := &nostr.Event{
		CreatedAt: 1700000000,
		Kind:      nostr.KindTextNote,
		Content:   "original",
	}
	require.NoError(t, base.Sign(priv))

	tests := []struct {
		name   string
		mutate func(e *nostr.Event)
		want   error
	}{
		{
			name:   "content changed",
			mutate: func(e *nostr.Event) { e.Content = "alterado" },
			want:   nostr.ErrInvalidEventID,
		},
		{
			name:   "created_at changed",
			mutate: func(e *nostr.Event) { e.CreatedAt++ },
			want:   nostr.ErrInvalidEventID,
		},
		{
			name: "signature swapped",
			mutate: func(e *nostr.Event) {
				other := *e
				other.Content = "outro evento"
				require.NoError(t, other.Sign(priv))
				e.Sig = other.Sig
			},
			want: nostr.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := *base
			tt.mutate(&ev)
			require.ErrorIs(t, ev.CheckSignature(), tt.want)
		})
	}
}

func TestSerializeIsStable(t *testing.T) {
	ev := &nostr.Event{
		PubKey:    "ab",
		CreatedAt: 42,
		Kind:      nostr.KindOracleAttestation,
		Content:   `texto com "aspas" e <html> & coisas`,
	}
	first := ev.ComputeID()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ev.ComputeID())
	}

	// tags nil e tags vazias serializam igual
	ev.Tags = []nostr.Tag{}
	require.Equal(t, first, ev.ComputeID())
}

func TestAddSignature(t *testing.T) {
	priv := testKey(t, 11)

	unsigned := &nostr.Event{
		PubKey:    nostr.PublicKeyHex(priv),
		CreatedAt: 1700000100,
		Kind:      nostr.KindTextNote,
		Content:   "nota de payout",
	}
	unsigned.ID = unsigned.ComputeID()

	id, err := unsigned.IDBytes()
	require.NoError(t, err)
	sig, err := schnorr.Sign(priv, id[:])
	require.NoError(t, err)

	signed, err := unsigned.AddSignature(sig)
	require.NoError(t, err)
	require.Equal(t, unsigned.ID, signed.ID)
	require.Equal(t, hex.EncodeToString(sig.Serialize()), signed.Sig)
	require.NoError(t, signed.CheckSignature())

	// evento original continua sem assinatura
	require.Empty(t, unsigned.Sig)

	// assinatura de outra chave não cola
	otherSig, err := schnorr.Sign(testKey(t, 12), id[:])
	require.NoError(t, err)
	_, err = unsigned.AddSignature(otherSig)
	require.ErrorIs(t, err, nostr.ErrInvalidSignature)
}

func TestFirstTagValue(t *testing.T) {
	ev := &nostr.Event{
		Tags: []nostr.Tag{{"p", "pub1"}, {"e", "id1"}, {"e", "id2"}},
	}
	require.Equal(t, "id1", ev.FirstTagValue("e"))
	require.Equal(t, "pub1", ev.FirstTagValue("p"))
	require.Equal(t, "", ev.FirstTagValue("d"))
}
