package tree

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ark-network/ark-client-go/common"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	sharedOutputIndex    = 0
	connectorOutputIndex = 1
)

// InvalidTreeStructureError reports the first structural violation found
// while validating a vtxo or connectors tree.
type InvalidTreeStructureError struct {
	Level  int
	Index  int
	Reason string
}

func (e *InvalidTreeStructureError) Error() string {
	return fmt.Sprintf(
		"invalid tree structure at level %d, index %d: %s", e.Level, e.Index, e.Reason,
	)
}

func treeErr(level, index int, reason string, args ...any) error {
	return &InvalidTreeStructureError{
		Level: level, Index: index, Reason: fmt.Sprintf(reason, args...),
	}
}

// ValidateVtxoTree checks that the vtxo tree returned by the server is
// coherent with the round transaction:
//   - the root spends the shared output (index 0) of the round transaction
//   - every node spends an output of its parent, without inflating amounts
//   - every internal output pays the cosigners' aggregated key tweaked with
//     the sweep tapscript root
//   - every leaf output is part of the registered outputs set
func ValidateVtxoTree(
	roundTx string, vtxoTree TxTree, sweepTapTreeRoot []byte,
	registeredOutputs []*wire.TxOut,
) error {
	roundPtx, err := psbt.NewFromRawBytes(strings.NewReader(roundTx), true)
	if err != nil {
		return fmt.Errorf("invalid round transaction: %w", err)
	}

	if len(roundPtx.UnsignedTx.TxOut) < sharedOutputIndex+1 {
		return fmt.Errorf("missing shared output in round transaction")
	}

	if len(vtxoTree) == 0 || len(vtxoTree[0]) != 1 {
		return treeErr(0, 0, "root level must have exactly one node")
	}

	sharedOutput := roundPtx.UnsignedTx.TxOut[sharedOutputIndex]

	if err := validateTxTree(
		vtxoTree, roundPtx.UnsignedTx.TxID(), sharedOutputIndex,
		sharedOutput.Value, sweepTapTreeRoot,
	); err != nil {
		return err
	}

	for i, level := range vtxoTree {
		for j, node := range level {
			if !node.Leaf {
				continue
			}

			ptx, _ := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			for _, out := range ptx.UnsignedTx.TxOut {
				if IsAnchor(out) {
					continue
				}

				found := false
				for _, registered := range registeredOutputs {
					if bytes.Equal(out.PkScript, registered.PkScript) &&
						out.Value == registered.Value {
						found = true
						break
					}
				}

				if !found {
					return treeErr(i, j, "leaf output not found in registered outputs")
				}
			}
		}
	}

	return nil
}

// ValidateConnectorsTree checks that the connectors tree returned by the
// server is rooted at the connectors output (index 1) of the round
// transaction and that every leaf pays the server's forfeit script.
func ValidateConnectorsTree(
	roundTx string, connectorsTree TxTree, serverScript []byte,
) error {
	roundPtx, err := psbt.NewFromRawBytes(strings.NewReader(roundTx), true)
	if err != nil {
		return fmt.Errorf("invalid round transaction: %w", err)
	}

	if len(roundPtx.UnsignedTx.TxOut) < connectorOutputIndex+1 {
		return fmt.Errorf("missing connectors output in round transaction")
	}

	if len(connectorsTree) == 0 || len(connectorsTree[0]) != 1 {
		return treeErr(0, 0, "root level must have exactly one node")
	}

	connectorsOutput := roundPtx.UnsignedTx.TxOut[connectorOutputIndex]

	if err := validateTxTree(
		connectorsTree, roundPtx.UnsignedTx.TxID(), connectorOutputIndex,
		connectorsOutput.Value, nil,
	); err != nil {
		return err
	}

	for i, level := range connectorsTree {
		for j, node := range level {
			if !node.Leaf {
				continue
			}

			ptx, _ := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			for _, out := range ptx.UnsignedTx.TxOut {
				if IsAnchor(out) {
					continue
				}

				if !bytes.Equal(out.PkScript, serverScript) {
					return treeErr(i, j, "connector leaf output is not the server script")
				}
			}
		}
	}

	return nil
}

// validateTxTree walks the matrix and checks per-node txid coherence,
// parent linkage, amount conservation and, when sweepTapTreeRoot is set,
// that internal outputs pay the cosigners' tweaked aggregated key.
func validateTxTree(
	txTree TxTree, rootParentTxid string, rootParentVout uint32,
	rootInputAmount int64, sweepTapTreeRoot []byte,
) error {
	for i, level := range txTree {
		// children spend their parent's outputs in level order
		nextParentVout := make(map[string]uint32)

		for j, node := range level {
			if node.Tx == "" {
				return treeErr(i, j, "empty node transaction")
			}
			if node.Txid == "" {
				return treeErr(i, j, "empty node txid")
			}

			ptx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			if err != nil {
				return treeErr(i, j, "invalid node transaction: %s", err)
			}

			if ptx.UnsignedTx.TxID() != node.Txid {
				return treeErr(i, j, "node txid differs from node transaction")
			}

			if len(ptx.UnsignedTx.TxIn) != 1 {
				return treeErr(i, j, "node transaction should have exactly one input")
			}

			input := ptx.UnsignedTx.TxIn[0]
			prevTxid := input.PreviousOutPoint.Hash.String()

			var inputAmount int64
			if i == 0 {
				if prevTxid != rootParentTxid ||
					input.PreviousOutPoint.Index != rootParentVout {
					return treeErr(
						i, j, "root does not spend the round transaction output %d",
						rootParentVout,
					)
				}
				inputAmount = rootInputAmount
			} else {
				if node.ParentTxid == "" {
					return treeErr(i, j, "empty node parent txid")
				}
				if prevTxid != node.ParentTxid {
					return treeErr(i, j, "node input does not spend its parent")
				}

				parent, ok := txTree.Find(node.ParentTxid)
				if !ok {
					return treeErr(i, j, "parent %s not found in tree", node.ParentTxid)
				}

				parentPtx, err := psbt.NewFromRawBytes(strings.NewReader(parent.Tx), true)
				if err != nil {
					return treeErr(i, j, "invalid parent transaction: %s", err)
				}

				if input.PreviousOutPoint.Index >= uint32(len(parentPtx.UnsignedTx.TxOut)) {
					return treeErr(i, j, "node input references a missing parent output")
				}

				expectedVout := nextParentVout[node.ParentTxid]
				nextParentVout[node.ParentTxid]++
				if input.PreviousOutPoint.Index != expectedVout {
					return treeErr(
						i, j, "node input spends parent output %d, expected %d",
						input.PreviousOutPoint.Index, expectedVout,
					)
				}

				parentOutput := parentPtx.UnsignedTx.TxOut[input.PreviousOutPoint.Index]
				inputAmount = parentOutput.Value

				if sweepTapTreeRoot != nil {
					if err := validateInternalOutputScript(
						parentOutput.PkScript, ptx, sweepTapTreeRoot,
					); err != nil {
						return treeErr(i, j, "%s", err)
					}
				}
			}

			sumOutputs := int64(0)
			for _, out := range ptx.UnsignedTx.TxOut {
				if IsAnchor(out) {
					continue
				}
				sumOutputs += out.Value
			}

			if sumOutputs > inputAmount {
				return treeErr(i, j, "node outputs exceed input amount")
			}

			if node.Leaf && len(txTree.Children(node.Txid)) > 0 {
				return treeErr(i, j, "leaf node has children")
			}
		}
	}

	return nil
}

// validateInternalOutputScript checks that the parent output funding the
// given node pays the taproot key aggregated from the node's cosigners and
// tweaked with the sweep tapscript root.
func validateInternalOutputScript(
	parentOutputScript []byte, nodePtx *psbt.Packet, sweepTapTreeRoot []byte,
) error {
	if len(parentOutputScript) != 34 {
		return fmt.Errorf("invalid taproot output script length")
	}

	cosigners, err := GetCosignerKeys(nodePtx.Inputs[0])
	if err != nil {
		return fmt.Errorf("unable to get cosigner keys: %s", err)
	}

	if len(cosigners) == 0 {
		return fmt.Errorf("missing cosigner public keys")
	}

	aggregatedKey, err := AggregateKeys(cosigners, sweepTapTreeRoot)
	if err != nil {
		return fmt.Errorf("unable to aggregate keys: %s", err)
	}

	if !bytes.Equal(
		schnorr.SerializePubKey(aggregatedKey.FinalKey), parentOutputScript[2:],
	) {
		return fmt.Errorf("parent output is not the cosigners' aggregated key")
	}

	return nil
}

// SweepTapTreeRoot builds the sweep tapscript root of a round: a single CSV
// closure locking the server key for the batch expiry.
func SweepTapTreeRoot(
	server *secp256k1.PublicKey, batchExpiry common.RelativeLocktime,
) ([]byte, error) {
	sweepClosure := &CSVMultisigClosure{
		MultisigClosure: MultisigClosure{PubKeys: []*secp256k1.PublicKey{server}},
		Locktime:        batchExpiry,
	}

	script, err := sweepClosure.Script()
	if err != nil {
		return nil, err
	}

	sweepTapLeaf := txscript.NewBaseTapLeaf(script)
	sweepTapTree := txscript.AssembleTaprootScriptTree(sweepTapLeaf)
	root := sweepTapTree.RootNode.TapHash()
	return root.CloneBytes(), nil
}
