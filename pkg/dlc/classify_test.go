package dlc_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
)

func TestClassifySignature(t *testing.T) {
	oracle := newOracle(t)
	ann := announceCoinFlip(t, oracle, "coin-flip-classify")
	info := ann.OracleInfo()

	party, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	winMsg := sha256.Sum256([]byte("win payout"))
	loseMsg := sha256.Sum256([]byte("lose payout"))

	headsPoint, err := dlc.AdaptorPoint(info, "Heads")
	require.NoError(t, err)

	winSig, err := adaptor.Sign(party, headsPoint, winMsg[:])
	require.NoError(t, err)
	loseSig, err := adaptor.Sign(party, headsPoint, loseMsg[:])
	require.NoError(t, err)

	tailsPoint, err := dlc.AdaptorPoint(info, "Tails")
	require.NoError(t, err)
	tailsSig, err := adaptor.Sign(party, tailsPoint, winMsg[:])
	require.NoError(t, err)

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		sig     *adaptor.Signature
		outcome string
		signer  *btcec.PublicKey
		want    dlc.Side
	}{
		{"win sig classifies win", winSig, "Heads", party.PubKey(), dlc.SideWin},
		{"lose sig classifies lose", loseSig, "Heads", party.PubKey(), dlc.SideLose},
		{"sig under wrong outcome point", tailsSig, "Heads", party.PubKey(), dlc.SideInvalid},
		{"sig under right point, wrong outcome label", winSig, "Tails", party.PubKey(), dlc.SideInvalid},
		{"wrong signer", winSig, "Heads", other.PubKey(), dlc.SideInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dlc.ClassifySignature(tt.sig, info, tt.outcome, tt.signer, winMsg[:], loseMsg[:])
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyAmbiguousIsInvalid(t *testing.T) {
	oracle := newOracle(t)
	ann := announceCoinFlip(t, oracle, "coin-flip-ambiguous")
	info := ann.OracleInfo()

	party, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("same payout both sides"))
	point, err := dlc.AdaptorPoint(info, "Heads")
	require.NoError(t, err)

	sig, err := adaptor.Sign(party, point, msg[:])
	require.NoError(t, err)

	// win e lose apontando pra mesma mensagem: classifica dos dois lados,
	// então rejeita como ambígua
	got := dlc.ClassifySignature(sig, info, "Heads", party.PubKey(), msg[:], msg[:])
	require.Equal(t, dlc.SideInvalid, got)
}

func TestClassifySideString(t *testing.T) {
	require.Equal(t, "win", dlc.SideWin.String())
	require.Equal(t, "lose", dlc.SideLose.String())
	require.Equal(t, "invalid", dlc.SideInvalid.String())
	require.True(t, dlc.SideWin.IsWin())
	require.False(t, dlc.SideLose.IsWin())
}
