package common_test

import (
	"testing"

	common "github.com/ark-network/ark-client-go/common"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) *secp256k1.PublicKey {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestAddressRoundTrip(t *testing.T) {
	t.Parallel()

	for _, hrp := range []string{"ark", "tark"} {
		serverKey := randomKey(t)
		vtxoKey := randomKey(t)

		addr := &common.Address{
			HRP:        hrp,
			Server:     serverKey,
			VtxoTapKey: vtxoKey,
		}

		encoded, err := addr.Encode()
		require.NoError(t, err)
		require.NotEmpty(t, encoded)

		decoded, err := common.DecodeAddress(encoded)
		require.NoError(t, err)
		require.Equal(t, hrp, decoded.HRP)
		require.Equal(t,
			addr.Server.SerializeCompressed()[1:],
			decoded.Server.SerializeCompressed()[1:],
		)
		require.Equal(t,
			addr.VtxoTapKey.SerializeCompressed()[1:],
			decoded.VtxoTapKey.SerializeCompressed()[1:],
		)

		reencoded, err := decoded.Encode()
		require.NoError(t, err)
		require.Equal(t, encoded, reencoded)
	}
}

func TestAddressPkScript(t *testing.T) {
	t.Parallel()

	vtxoKey := randomKey(t)
	addr := &common.Address{
		HRP:        "ark",
		Server:     randomKey(t),
		VtxoTapKey: vtxoKey,
	}

	script, err := addr.PkScript()
	require.NoError(t, err)
	require.Len(t, script, 34)
	require.EqualValues(t, 0x51, script[0])
	require.EqualValues(t, 0x20, script[1])
}

func TestDecodeAddressRejectsMutations(t *testing.T) {
	t.Parallel()

	addr := &common.Address{
		HRP:        "ark",
		Server:     randomKey(t),
		VtxoTapKey: randomKey(t),
	}
	encoded, err := addr.Encode()
	require.NoError(t, err)

	// every single-character mutation must be rejected
	alphabet := "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	for i := len("ark1"); i < len(encoded); i++ {
		for _, c := range alphabet {
			if rune(encoded[i]) == c {
				continue
			}
			mutated := encoded[:i] + string(c) + encoded[i+1:]
			_, err := common.DecodeAddress(mutated)
			require.Error(t, err, "mutation at index %d accepted", i)
		}
	}
}

func TestDecodeAddressFailures(t *testing.T) {
	t.Parallel()

	fixtures := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"unknown prefix", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"},
		{"not bech32", "not-an-address"},
		{"short payload", "ark1qar0srrr7xfkvy5l64"},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			_, err := common.DecodeAddress(f.addr)
			require.Error(t, err)
		})
	}
}
