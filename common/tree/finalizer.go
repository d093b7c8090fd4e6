package tree

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// EncodeTaprootSignature serializes a schnorr signature with its sighash
// type byte appended when the sighash is not SIGHASH_DEFAULT.
func EncodeTaprootSignature(sig []byte, sighashType txscript.SigHashType) []byte {
	if sighashType == txscript.SigHashDefault {
		return sig
	}
	return append(append([]byte{}, sig...), byte(sighashType))
}

// FinalizeVtxoScriptInput finalizes the given input, assembling the
// tapscript witness from the closure annotated on the input. The condition
// witness, when present in the input unknowns, leads the final stack.
func FinalizeVtxoScriptInput(ptx *psbt.Packet, inputIndex int) error {
	if len(ptx.Inputs) <= inputIndex {
		return fmt.Errorf("input index out of bounds %d, len(inputs)=%d", inputIndex, len(ptx.Inputs))
	}

	in := ptx.Inputs[inputIndex]
	if len(in.TaprootLeafScript) == 0 {
		return fmt.Errorf("missing tapscript leaf on input %d", inputIndex)
	}

	leaf := in.TaprootLeafScript[0]

	closure, err := DecodeClosure(leaf.Script)
	if err != nil {
		return err
	}

	args := make(map[string][]byte)

	conditionWitness, err := GetConditionWitness(in)
	if err != nil {
		return err
	}
	if len(conditionWitness) > 0 {
		var conditionWitnessBytes bytes.Buffer
		if err := psbt.WriteTxWitness(&conditionWitnessBytes, conditionWitness); err != nil {
			return err
		}
		args[ConditionWitnessKey] = conditionWitnessBytes.Bytes()
	}

	for _, sig := range in.TaprootScriptSpendSig {
		args[hex.EncodeToString(sig.XOnlyPubKey)] = EncodeTaprootSignature(
			sig.Signature, sig.SigHash,
		)
	}

	witness, err := closure.Witness(leaf.ControlBlock, args)
	if err != nil {
		return err
	}

	var witnessBuf bytes.Buffer
	if err := psbt.WriteTxWitness(&witnessBuf, witness); err != nil {
		return err
	}

	ptx.Inputs[inputIndex].FinalScriptWitness = witnessBuf.Bytes()

	return nil
}
