package tree

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BuildForfeitTx builds the transaction allowing the server to claim a vtxo
// in exchange for its connector:
//
//	input 0: connector, left unsigned for the server
//	input 1: vtxo, spent under the forfeit leaf with SIGHASH_DEFAULT
//	output 0: vtxoAmount + connectorAmount - feeAmount to the server script
//	output 1: zero-value pay-to-anchor
func BuildForfeitTx(
	connectorInput, vtxoInput *wire.OutPoint,
	vtxoAmount, connectorAmount, feeAmount uint64,
	vtxoScript, connectorScript, serverScript []byte,
	txLocktime uint32,
) (*psbt.Packet, error) {
	version := int32(3)

	vtxoSequence := wire.MaxTxInSequenceNum
	if txLocktime != 0 {
		vtxoSequence = wire.MaxTxInSequenceNum - 1
	}

	ins := []*wire.OutPoint{connectorInput, vtxoInput}
	sequences := []uint32{wire.MaxTxInSequenceNum, vtxoSequence}
	outs := []*wire.TxOut{
		{
			Value:    int64(vtxoAmount) + int64(connectorAmount) - int64(feeAmount),
			PkScript: serverScript,
		},
		AnchorOutput(),
	}

	partialTx, err := psbt.New(ins, outs, version, txLocktime, sequences)
	if err != nil {
		return nil, err
	}

	updater, err := psbt.NewUpdater(partialTx)
	if err != nil {
		return nil, err
	}

	if err := updater.AddInWitnessUtxo(&wire.TxOut{
		Value:    int64(connectorAmount),
		PkScript: connectorScript,
	}, 0); err != nil {
		return nil, err
	}

	if err := updater.AddInWitnessUtxo(&wire.TxOut{
		Value:    int64(vtxoAmount),
		PkScript: vtxoScript,
	}, 1); err != nil {
		return nil, err
	}

	if err := updater.AddInSighashType(txscript.SigHashDefault, 1); err != nil {
		return nil, err
	}

	return partialTx, nil
}
