package tree_test

import (
	"strings"
	"testing"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestValidateVtxoTree(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000, 2000})

	err := tree.ValidateVtxoTree(
		fixture.roundTx, fixture.vtxoTree, fixture.sweepTapTreeRoot,
		fixture.registeredOutputs,
	)
	require.NoError(t, err)
}

func TestValidateVtxoTreeMutatedNode(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000, 2000})

	// raise the second leaf's output amount without updating its txid
	mutated := fixture.vtxoTree
	leafPtx, err := psbt.NewFromRawBytes(strings.NewReader(mutated[1][1].Tx), true)
	require.NoError(t, err)
	leafPtx.UnsignedTx.TxOut[0].Value += 1

	mutatedTx, err := leafPtx.B64Encode()
	require.NoError(t, err)
	mutated[1][1].Tx = mutatedTx

	err = tree.ValidateVtxoTree(
		fixture.roundTx, mutated, fixture.sweepTapTreeRoot,
		fixture.registeredOutputs,
	)
	require.Error(t, err)

	var treeErr *tree.InvalidTreeStructureError
	require.ErrorAs(t, err, &treeErr)
	require.Equal(t, 1, treeErr.Level)
	require.Equal(t, 1, treeErr.Index)
}

func TestValidateVtxoTreeSwappedSiblings(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000, 2000})

	swapped := fixture.vtxoTree
	swapped[1][0], swapped[1][1] = swapped[1][1], swapped[1][0]

	err := tree.ValidateVtxoTree(
		fixture.roundTx, swapped, fixture.sweepTapTreeRoot,
		fixture.registeredOutputs,
	)
	require.Error(t, err)

	var treeErr *tree.InvalidTreeStructureError
	require.ErrorAs(t, err, &treeErr)
	require.Equal(t, 1, treeErr.Level)
	require.Equal(t, 0, treeErr.Index)
}

func TestValidateVtxoTreeUnregisteredLeafOutput(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000, 2000})

	// replace the first registered output with another script
	otherPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	otherScript, err := common.P2TRScript(otherPriv.PubKey())
	require.NoError(t, err)

	registered := []*wire.TxOut{
		{Value: 1000, PkScript: otherScript},
		fixture.registeredOutputs[1],
	}

	err = tree.ValidateVtxoTree(
		fixture.roundTx, fixture.vtxoTree, fixture.sweepTapTreeRoot, registered,
	)
	require.Error(t, err)

	var treeErr *tree.InvalidTreeStructureError
	require.ErrorAs(t, err, &treeErr)
	require.Equal(t, 1, treeErr.Level)
	require.Equal(t, 0, treeErr.Index)
}

func TestValidateVtxoTreeWrongRoot(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000})
	other := makeVtxoTreeFixture(t, []int64{1000})

	// the root of another tree does not spend this round's shared output
	err := tree.ValidateVtxoTree(
		fixture.roundTx, other.vtxoTree, other.sweepTapTreeRoot,
		other.registeredOutputs,
	)
	require.Error(t, err)

	var treeErr *tree.InvalidTreeStructureError
	require.ErrorAs(t, err, &treeErr)
	require.Equal(t, 0, treeErr.Level)
	require.Equal(t, 0, treeErr.Index)
}

func TestValidateVtxoTreeInflatedAmount(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000, 2000})

	// rebuild the second leaf so it pays more than its input
	leafPtx, err := psbt.NewFromRawBytes(
		strings.NewReader(fixture.vtxoTree[1][1].Tx), true,
	)
	require.NoError(t, err)

	inflated, err := psbt.New(
		[]*wire.OutPoint{&leafPtx.UnsignedTx.TxIn[0].PreviousOutPoint},
		[]*wire.TxOut{{
			Value:    leafPtx.UnsignedTx.TxOut[0].Value + 1000,
			PkScript: leafPtx.UnsignedTx.TxOut[0].PkScript,
		}},
		2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)
	inflated.Inputs[0].Unknowns = leafPtx.Inputs[0].Unknowns

	inflatedTx, err := inflated.B64Encode()
	require.NoError(t, err)

	fixture.vtxoTree[1][1].Tx = inflatedTx
	fixture.vtxoTree[1][1].Txid = inflated.UnsignedTx.TxID()

	err = tree.ValidateVtxoTree(
		fixture.roundTx, fixture.vtxoTree, fixture.sweepTapTreeRoot,
		fixture.registeredOutputs,
	)
	require.Error(t, err)

	var treeErr *tree.InvalidTreeStructureError
	require.ErrorAs(t, err, &treeErr)
	require.Equal(t, 1, treeErr.Level)
	require.Equal(t, 1, treeErr.Index)
}

func TestValidateConnectorsTree(t *testing.T) {
	t.Parallel()

	fixture := makeVtxoTreeFixture(t, []int64{1000})

	serverScript, err := common.P2TRScript(fixture.serverPrivKey.PubKey())
	require.NoError(t, err)

	roundPtx, err := psbt.NewFromRawBytes(strings.NewReader(fixture.roundTx), true)
	require.NoError(t, err)

	connectorPtx, err := psbt.New(
		[]*wire.OutPoint{{Hash: roundPtx.UnsignedTx.TxHash(), Index: 1}},
		[]*wire.TxOut{{Value: 450, PkScript: serverScript}},
		2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)

	connectorTx, err := connectorPtx.B64Encode()
	require.NoError(t, err)

	connectorsTree := tree.TxTree{
		{
			{
				Txid:       connectorPtx.UnsignedTx.TxID(),
				Tx:         connectorTx,
				ParentTxid: fixture.roundTxid,
				Leaf:       true,
			},
		},
	}

	err = tree.ValidateConnectorsTree(fixture.roundTx, connectorsTree, serverScript)
	require.NoError(t, err)

	// a leaf paying another script must be rejected
	otherPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	otherScript, err := common.P2TRScript(otherPriv.PubKey())
	require.NoError(t, err)

	err = tree.ValidateConnectorsTree(fixture.roundTx, connectorsTree, otherScript)
	require.Error(t, err)
}
