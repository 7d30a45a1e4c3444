package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRoundTripsAddress(t *testing.T) {
	w, err := GenerateFromRandom()
	require.NoError(t, err)

	loaded, err := Load(w.WIF)
	require.NoError(t, err)

	require.Equal(t, w.Address, loaded.Address)
	require.Equal(t, w.WIF, loaded.WIF)
}

func TestSignProducesDERSignature(t *testing.T) {
	w, err := GenerateFromRandom()
	require.NoError(t, err)

	sig, err := w.Sign([]byte("hello clawminer"))
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	require.Equal(t, byte(0x30), sig[0], "DER signatures start with the SEQUENCE marker")
}

func TestLoadRejectsBadChecksum(t *testing.T) {
	w, err := GenerateFromRandom()
	require.NoError(t, err)

	corrupted := w.WIF[:len(w.WIF)-1] + "1"
	if corrupted == w.WIF {
		corrupted = w.WIF[:len(w.WIF)-1] + "2"
	}
	_, err = Load(corrupted)
	require.Error(t, err)
}

func TestGenerateProducesValidMnemonic(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	require.NotEmpty(t, w.Mnemonic)
	require.NotEmpty(t, w.Address)
}
