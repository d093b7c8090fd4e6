package store_test

import (
	"context"
	"testing"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/store"
	"github.com/ark-network/ark-client-go/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreRoundTrip(t *testing.T) {
	t.Parallel()

	serverPrivKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	cfg := types.Config{
		ServerUrl:    "http://localhost:7070",
		ServerPubKey: serverPrivKey.PubKey(),
		WalletType:   "singlekey",
		ClientType:   "rest",
		Network:      common.BitcoinRegTest,
		VtxoTreeExpiry: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 144,
		},
		RoundInterval: 30,
		UnilateralExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 512,
		},
		BoardingExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 1000,
		},
		Dust:           330,
		ForfeitAddress: "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
	}

	tests := []struct {
		name        string
		storeConfig store.Config
	}{
		{
			name: "inmemory",
			storeConfig: store.Config{
				ConfigStoreType: types.InMemoryStore,
			},
		},
		{
			name: "file",
			storeConfig: store.Config{
				ConfigStoreType: types.FileStore,
				BaseDir:         t.TempDir(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := store.NewStore(tt.storeConfig)
			require.NoError(t, err)
			defer svc.Close()

			ctx := context.Background()

			data, err := svc.ConfigStore().GetData(ctx)
			require.NoError(t, err)
			require.Nil(t, data)

			require.NoError(t, svc.ConfigStore().AddData(ctx, cfg))

			data, err = svc.ConfigStore().GetData(ctx)
			require.NoError(t, err)
			require.NotNil(t, data)
			require.Equal(t, cfg.ServerUrl, data.ServerUrl)
			require.Equal(t, cfg.Network.Name, data.Network.Name)
			require.Equal(t, cfg.VtxoTreeExpiry, data.VtxoTreeExpiry)
			require.Equal(t, cfg.Dust, data.Dust)
			require.Equal(t,
				cfg.ServerPubKey.SerializeCompressed(),
				data.ServerPubKey.SerializeCompressed(),
			)

			require.NoError(t, svc.ConfigStore().CleanData(ctx))
			data, err = svc.ConfigStore().GetData(ctx)
			require.NoError(t, err)
			require.Nil(t, data)
		})
	}
}

func TestVtxoStore(t *testing.T) {
	t.Parallel()

	svc, err := store.NewStore(store.Config{
		ConfigStoreType:  types.InMemoryStore,
		AppDataStoreType: "badger",
	})
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()

	vtxos := []types.Vtxo{
		{
			VtxoKey: types.VtxoKey{Txid: "aa", VOut: 0},
			Amount:  1000,
		},
		{
			VtxoKey: types.VtxoKey{Txid: "bb", VOut: 1},
			Amount:  2000,
			Spent:   true,
		},
	}

	require.NoError(t, svc.VtxoStore().AddVtxos(ctx, vtxos))

	spendable, spent, err := svc.VtxoStore().GetAllVtxos(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 1)
	require.Len(t, spent, 1)

	found, err := svc.VtxoStore().GetVtxos(ctx, []types.VtxoKey{
		{Txid: "aa", VOut: 0},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.EqualValues(t, 1000, found[0].Amount)
}
