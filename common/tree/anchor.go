package tree

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ANCHOR_PKSCRIPT is the well-known pay-to-anchor script OP_1 <0x4e73>
	ANCHOR_PKSCRIPT = []byte{
		0x51, 0x02, 0x4e, 0x73,
	}
	ANCHOR_VALUE = int64(0)
)

func AnchorOutput() *wire.TxOut {
	return &wire.TxOut{
		Value:    ANCHOR_VALUE,
		PkScript: ANCHOR_PKSCRIPT,
	}
}

func IsAnchor(out *wire.TxOut) bool {
	return out.Value == ANCHOR_VALUE && bytes.Equal(out.PkScript, ANCHOR_PKSCRIPT)
}

// ExtractWithAnchors extracts the final witness and scriptSig from psbt
// fields and ignores anchor inputs without failing.
func ExtractWithAnchors(p *psbt.Packet) (*wire.MsgTx, error) {
	finalTx := p.UnsignedTx.Copy()

	for i, tin := range finalTx.TxIn {
		pInput := p.Inputs[i]

		// ignore anchor inputs
		if pInput.WitnessUtxo != nil && bytes.Equal(pInput.WitnessUtxo.PkScript, ANCHOR_PKSCRIPT) {
			continue
		}

		if pInput.FinalScriptSig != nil {
			tin.SignatureScript = pInput.FinalScriptSig
		}

		if pInput.FinalScriptWitness != nil {
			witness, err := ReadTxWitness(pInput.FinalScriptWitness)
			if err != nil {
				return nil, err
			}
			tin.Witness = witness
		}
	}

	return finalTx, nil
}
