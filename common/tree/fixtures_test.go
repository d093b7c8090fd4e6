package tree_test

import (
	"testing"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

var treeExpiry = common.RelativeLocktime{
	Type: common.LocktimeTypeBlock, Value: 144,
}

// vtxoTreeFixture is a two-level vtxo tree: one root spending the shared
// output of the round tx and one leaf per receiver.
type vtxoTreeFixture struct {
	roundTx           string
	roundTxid         string
	vtxoTree          tree.TxTree
	sweepTapTreeRoot  []byte
	cosignerPrivKeys  []*secp256k1.PrivateKey
	serverPrivKey     *secp256k1.PrivateKey
	registeredOutputs []*wire.TxOut
	sharedAmount      int64
}

func makeVtxoTreeFixture(t *testing.T, leafAmounts []int64) *vtxoTreeFixture {
	t.Helper()

	serverPrivKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	cosignerPrivKeys := make([]*secp256k1.PrivateKey, 0, 3)
	cosignerPubKeys := make([]*btcec.PublicKey, 0, 3)
	for i := 0; i < 2; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		cosignerPrivKeys = append(cosignerPrivKeys, priv)
		cosignerPubKeys = append(cosignerPubKeys, priv.PubKey())
	}
	cosignerPrivKeys = append(cosignerPrivKeys, serverPrivKey)
	cosignerPubKeys = append(cosignerPubKeys, serverPrivKey.PubKey())

	sweepTapTreeRoot, err := tree.SweepTapTreeRoot(serverPrivKey.PubKey(), treeExpiry)
	require.NoError(t, err)

	aggregatedKey, err := tree.AggregateKeys(cosignerPubKeys, sweepTapTreeRoot)
	require.NoError(t, err)

	sharedScript, err := common.P2TRScript(aggregatedKey.FinalKey)
	require.NoError(t, err)

	sumLeaves := int64(0)
	for _, amount := range leafAmounts {
		sumLeaves += amount
	}
	sharedAmount := sumLeaves + 100

	// round transaction: shared output at index 0, connectors at index 1
	fundingTxid, err := chainhash.NewHashFromStr(
		"49f8664acc899be91902f8ade781b7eeb9cbe22bdd9efbc36e56195de21bcd12",
	)
	require.NoError(t, err)

	roundPtx, err := psbt.New(
		[]*wire.OutPoint{{Hash: *fundingTxid, Index: 0}},
		[]*wire.TxOut{
			{Value: sharedAmount, PkScript: sharedScript},
			{Value: 450, PkScript: sharedScript},
		},
		2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)

	roundTx, err := roundPtx.B64Encode()
	require.NoError(t, err)

	roundTxid := roundPtx.UnsignedTx.TxID()
	roundHash := roundPtx.UnsignedTx.TxHash()

	// root: one output per leaf, all paying the cosigners aggregate
	rootOuts := make([]*wire.TxOut, 0, len(leafAmounts))
	for _, amount := range leafAmounts {
		rootOuts = append(rootOuts, &wire.TxOut{
			Value: amount, PkScript: sharedScript,
		})
	}

	rootPtx, err := psbt.New(
		[]*wire.OutPoint{{Hash: roundHash, Index: 0}},
		rootOuts, 2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)

	for _, pubkey := range cosignerPubKeys {
		require.NoError(t, tree.AddCosignerKey(0, rootPtx, pubkey))
	}

	rootTx, err := rootPtx.B64Encode()
	require.NoError(t, err)
	rootTxid := rootPtx.UnsignedTx.TxID()
	rootHash := rootPtx.UnsignedTx.TxHash()

	// leaves: each spends one root output and pays a receiver
	registeredOutputs := make([]*wire.TxOut, 0, len(leafAmounts))
	leaves := make([]tree.Node, 0, len(leafAmounts))
	for i, amount := range leafAmounts {
		receiverPriv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)

		receiverScript, err := common.P2TRScript(receiverPriv.PubKey())
		require.NoError(t, err)

		leafPtx, err := psbt.New(
			[]*wire.OutPoint{{Hash: rootHash, Index: uint32(i)}},
			[]*wire.TxOut{{Value: amount, PkScript: receiverScript}},
			2, 0, []uint32{wire.MaxTxInSequenceNum},
		)
		require.NoError(t, err)

		for _, pubkey := range cosignerPubKeys {
			require.NoError(t, tree.AddCosignerKey(0, leafPtx, pubkey))
		}

		leafTx, err := leafPtx.B64Encode()
		require.NoError(t, err)

		leaves = append(leaves, tree.Node{
			Txid:       leafPtx.UnsignedTx.TxID(),
			Tx:         leafTx,
			ParentTxid: rootTxid,
			Level:      1,
			LevelIndex: i,
			Leaf:       true,
		})

		registeredOutputs = append(registeredOutputs, &wire.TxOut{
			Value: amount, PkScript: receiverScript,
		})
	}

	vtxoTree := tree.TxTree{
		{
			{
				Txid:       rootTxid,
				Tx:         rootTx,
				ParentTxid: roundTxid,
				Level:      0,
				LevelIndex: 0,
			},
		},
		leaves,
	}

	return &vtxoTreeFixture{
		roundTx:           roundTx,
		roundTxid:         roundTxid,
		vtxoTree:          vtxoTree,
		sweepTapTreeRoot:  sweepTapTreeRoot,
		cosignerPrivKeys:  cosignerPrivKeys,
		serverPrivKey:     serverPrivKey,
		registeredOutputs: registeredOutputs,
		sharedAmount:      sharedAmount,
	}
}
