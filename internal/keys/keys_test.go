package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDeterministicPublicKey(t *testing.T) {
	first, err := Derive("T1")
	require.NoError(t, err)

	second, err := Derive("T1")
	require.NoError(t, err)

	require.Equal(t, first.PubKey, second.PubKey)

	other, err := Derive("T2")
	require.NoError(t, err)
	require.NotEqual(t, first.PubKey, other.PubKey)
}

func TestDecrypt(t *testing.T) {
	pair, err := Derive("T1")
	require.NoError(t, err)

	priv, err := Decrypt("T1", pair.EncPrivKey)
	require.NoError(t, err)

	pub, err := base64.StdEncoding.DecodeString(pair.PubKey)
	require.NoError(t, err)
	require.Equal(t, ed25519.PublicKey(pub), priv.Public())

	_, err = Decrypt("wrong", pair.EncPrivKey)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt("T1", "@@@")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDeriveEmptyToken(t *testing.T) {
	_, err := Derive("")
	require.Error(t, err)
}
