package utils_test

import (
	"testing"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/internal/utils"
	"github.com/ark-network/ark-client-go/types"
	"github.com/stretchr/testify/require"
)

func makeVtxos(amounts ...uint64) []client.TapscriptsVtxo {
	vtxos := make([]client.TapscriptsVtxo, 0, len(amounts))
	for i, amount := range amounts {
		vtxos = append(vtxos, client.TapscriptsVtxo{
			Vtxo: client.Vtxo{
				Outpoint: client.Outpoint{Txid: "aa", VOut: uint32(i)},
				Amount:   amount,
			},
		})
	}
	return vtxos
}

func TestCoinSelect(t *testing.T) {
	t.Parallel()

	t.Run("exact amount", func(t *testing.T) {
		_, selected, change, err := utils.CoinSelect(
			nil, makeVtxos(1000, 2000), 3000, 330, false,
		)
		require.NoError(t, err)
		require.Len(t, selected, 2)
		require.Zero(t, change)
	})

	t.Run("with change", func(t *testing.T) {
		_, selected, change, err := utils.CoinSelect(
			nil, makeVtxos(1000, 2000), 1500, 330, false,
		)
		require.NoError(t, err)
		require.Len(t, selected, 2)
		require.EqualValues(t, 1500, change)
	})

	t.Run("smallest first", func(t *testing.T) {
		_, selected, _, err := utils.CoinSelect(
			nil, makeVtxos(5000, 1000), 500, 330, false,
		)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		require.EqualValues(t, 1000, selected[0].Amount)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		_, _, _, err := utils.CoinSelect(
			nil, makeVtxos(1000), 2000, 330, false,
		)
		require.Error(t, err)
	})

	t.Run("boarding utxos first", func(t *testing.T) {
		boarding := []types.Utxo{{Txid: "bb", VOut: 0, Amount: 10_000}}
		selectedBoarding, selected, change, err := utils.CoinSelect(
			boarding, makeVtxos(1000), 5000, 330, false,
		)
		require.NoError(t, err)
		require.Len(t, selectedBoarding, 1)
		require.Empty(t, selected)
		require.EqualValues(t, 5000, change)
	})

	t.Run("dust change pulls one more coin", func(t *testing.T) {
		_, selected, change, err := utils.CoinSelect(
			nil, makeVtxos(1000, 2000, 5000), 900, 330, false,
		)
		require.NoError(t, err)
		// the 1000 coin alone leaves a change of 100, below dust, so the
		// next unselected coin (2000) is added to the change
		require.Len(t, selected, 2)
		require.EqualValues(t, 2100, change)
	})
}
