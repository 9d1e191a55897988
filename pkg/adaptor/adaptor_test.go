package adaptor_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/radieske/dlc-duel-platform-poc/pkg/adaptor"
)

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestSignVerifyDecryptRecover(t *testing.T) {
	signer := newKey(t)
	encPriv := newKey(t)
	encKey := encPriv.PubKey()
	secret := encPriv.Key

	msg := sha256.Sum256([]byte("payout note"))

	encSig, err := adaptor.Sign(signer, encKey, msg[:])
	require.NoError(t, err)
	require.True(t, encSig.Verify(msg[:], signer.PubKey(), encKey))

	// a encriptada sozinha não é uma assinatura BIP340 válida
	plainFromEnc, err := schnorr.ParseSignature(encSig.Serialize())
	if err == nil {
		signerX, perr := schnorr.ParsePubKey(schnorr.SerializePubKey(signer.PubKey()))
		require.NoError(t, perr)
		require.False(t, plainFromEnc.Verify(msg[:], signerX))
	}

	final := encSig.Decrypt(&secret)
	signerX, err := schnorr.ParsePubKey(schnorr.SerializePubKey(signer.PubKey()))
	require.NoError(t, err)
	require.True(t, final.Verify(msg[:], signerX))

	recovered, err := encSig.RecoverSecret(final)
	require.NoError(t, err)
	require.True(t, recovered.Equals(&secret))
}

func TestVerifyRejects(t *testing.T) {
	signer := newKey(t)
	encKey := newKey(t).PubKey()
	msg := sha256.Sum256([]byte("msg"))

	encSig, err := adaptor.Sign(signer, encKey, msg[:])
	require.NoError(t, err)

	otherMsg := sha256.Sum256([]byte("outra msg"))
	otherKey := newKey(t).PubKey()

	tests := []struct {
		name  string
		check func() bool
	}{
		{"wrong message", func() bool { return encSig.Verify(otherMsg[:], signer.PubKey(), encKey) }},
		{"wrong signer", func() bool { return encSig.Verify(msg[:], otherKey, encKey) }},
		{"wrong encryption key", func() bool { return encSig.Verify(msg[:], signer.PubKey(), otherKey) }},
		{"short hash", func() bool { return encSig.Verify(msg[:16], signer.PubKey(), encKey) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, tt.check())
		})
	}
}

func TestDecryptWithWrongSecret(t *testing.T) {
	signer := newKey(t)
	encPriv := newKey(t)
	msg := sha256.Sum256([]byte("msg"))

	encSig, err := adaptor.Sign(signer, encPriv.PubKey(), msg[:])
	require.NoError(t, err)

	wrong := newKey(t).Key
	final := encSig.Decrypt(&wrong)

	signerX, err := schnorr.ParsePubKey(schnorr.SerializePubKey(signer.PubKey()))
	require.NoError(t, err)
	require.False(t, final.Verify(msg[:], signerX))
}

func TestParseSerializeRoundTrip(t *testing.T) {
	signer := newKey(t)
	encKey := newKey(t).PubKey()
	msg := sha256.Sum256([]byte("round trip"))

	encSig, err := adaptor.Sign(signer, encKey, msg[:])
	require.NoError(t, err)

	raw := encSig.Serialize()
	require.Len(t, raw, adaptor.SignatureSize)

	back, err := adaptor.ParseSignature(raw)
	require.NoError(t, err)
	require.Equal(t, raw, back.Serialize())
	require.True(t, back.Verify(msg[:], signer.PubKey(), encKey))
}

func TestParseSignatureErrors(t *testing.T) {
	overflowS := make([]byte, 64)
	for i := 32; i < 64; i++ {
		overflowS[i] = 0xff
	}
	overflowR := make([]byte, 64)
	for i := 0; i < 32; i++ {
		overflowR[i] = 0xff
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"too short", make([]byte, 63)},
		{"too long", make([]byte, 65)},
		{"r overflow", overflowR},
		{"s overflow", overflowS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adaptor.ParseSignature(tt.in)
			require.ErrorIs(t, err, adaptor.ErrInvalidEncoding)
		})
	}
}

func TestRecoverSecretNonceMismatch(t *testing.T) {
	signer := newKey(t)
	encPriv := newKey(t)
	msg := sha256.Sum256([]byte("msg"))

	encSig, err := adaptor.Sign(signer, encPriv.PubKey(), msg[:])
	require.NoError(t, err)

	// assinatura final de outro nonce não recupera segredo nenhum
	unrelated, err := schnorr.Sign(signer, msg[:])
	require.NoError(t, err)
	_, err = encSig.RecoverSecret(unrelated)
	require.ErrorIs(t, err, adaptor.ErrNonceMismatch)
}

func TestLiftX(t *testing.T) {
	priv := newKey(t)
	xOnly := schnorr.SerializePubKey(priv.PubKey())

	lifted, err := adaptor.LiftX(xOnly)
	require.NoError(t, err)
	require.Equal(t, byte(secp256k1.PubKeyFormatCompressedEven), lifted.SerializeCompressed()[0])
	require.Equal(t, xOnly, lifted.SerializeCompressed()[1:])

	_, err = adaptor.LiftX(xOnly[:31])
	require.ErrorIs(t, err, adaptor.ErrInvalidPoint)

	ff := make([]byte, 32)
	for i := range ff {
		ff[i] = 0xff
	}
	_, err = adaptor.LiftX(ff)
	require.ErrorIs(t, err, adaptor.ErrInvalidPoint)
}

func TestSignDeterministic(t *testing.T) {
	signer := newKey(t)
	encKey := newKey(t).PubKey()
	msg := sha256.Sum256([]byte("msg"))

	first, err := adaptor.Sign(signer, encKey, msg[:])
	require.NoError(t, err)
	second, err := adaptor.Sign(signer, encKey, msg[:])
	require.NoError(t, err)
	require.Equal(t, first.Serialize(), second.Serialize())

	// outro ponto de encriptação muda o nonce junto
	otherEnc := newKey(t).PubKey()
	third, err := adaptor.Sign(signer, otherEnc, msg[:])
	require.NoError(t, err)
	require.NotEqual(t, first.Serialize(), third.Serialize())
}
