package tree

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ark-network/ark-client-go/common"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// 0250929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0
var unspendablePoint = []byte{
	0x02, 0x50, 0x92, 0x9b, 0x74, 0xc1, 0xa0, 0x49, 0x54, 0xb7, 0x8b, 0x4b, 0x60, 0x35, 0xe9, 0x7a,
	0x5e, 0x07, 0x8a, 0x5a, 0x0f, 0x28, 0xec, 0x96, 0xd5, 0x47, 0xbf, 0xee, 0x9a, 0xce, 0x80, 0x3a, 0xc0,
}

// UnspendableKey returns the BIP-341 nothing-up-my-sleeve internal key used
// by every taproot tree of the protocol.
func UnspendableKey() *secp256k1.PublicKey {
	key, _ := secp256k1.ParsePubKey(unspendablePoint)
	return key
}

// Closure is a tapscript leaf the client knows how to build, recognise and
// satisfy.
type Closure interface {
	Script() ([]byte, error)
	Decode(script []byte) (bool, error)
	// WitnessSize returns the expected size in bytes of the witness stack
	// satisfying the closure, excluding the leaf script and control block.
	WitnessSize(conditionWitnessSizes ...int) int
	Witness(controlBlock []byte, args map[string][]byte) (wire.TxWitness, error)
}

// MultisigClosure is the M-of-M script
// <pk_1> CHECKSIGVERIFY ... <pk_N> CHECKSIG
type MultisigClosure struct {
	PubKeys []*secp256k1.PublicKey
}

// CSVMultisigClosure is a MultisigClosure gated by a BIP-68 relative
// timelock: <sequence> CHECKSEQUENCEVERIFY DROP <multisig>
type CSVMultisigClosure struct {
	MultisigClosure
	Locktime common.RelativeLocktime
}

// CLTVMultisigClosure is a MultisigClosure gated by an absolute timelock:
// <locktime> CHECKLOCKTIMEVERIFY DROP <multisig>
type CLTVMultisigClosure struct {
	MultisigClosure
	Locktime common.AbsoluteLocktime
}

// ConditionMultisigClosure prefixes a MultisigClosure with a condition
// script, the hash-preimage gate: HASH160 <20-byte hash> EQUALVERIFY
type ConditionMultisigClosure struct {
	MultisigClosure
	Condition []byte
}

// ConditionCSVMultisigClosure combines the BIP-68 gate, the condition
// script and the multisig, in this order.
type ConditionCSVMultisigClosure struct {
	CSVMultisigClosure
	Condition []byte
}

// HashCondition returns the preimage gate script for the given HASH160
// digest.
func HashCondition(preimageHash []byte) ([]byte, error) {
	if len(preimageHash) != 20 {
		return nil, fmt.Errorf("invalid preimage hash length %d, expected 20", len(preimageHash))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(preimageHash).
		AddOp(txscript.OP_EQUALVERIFY).
		Script()
}

// DecodeClosure tries to decode the given script against every known
// closure type.
func DecodeClosure(script []byte) (Closure, error) {
	types := []Closure{
		&ConditionCSVMultisigClosure{},
		&CSVMultisigClosure{},
		&CLTVMultisigClosure{},
		&ConditionMultisigClosure{},
		&MultisigClosure{},
	}

	for _, closure := range types {
		if valid, err := closure.Decode(script); err == nil && valid {
			return closure, nil
		}
	}

	return nil, fmt.Errorf("invalid closure script %s", hex.EncodeToString(script))
}

func (f *MultisigClosure) Script() ([]byte, error) {
	if len(f.PubKeys) == 0 {
		return nil, fmt.Errorf("missing public keys")
	}

	builder := txscript.NewScriptBuilder()
	for i, pubkey := range f.PubKeys {
		builder.AddData(schnorr.SerializePubKey(pubkey))
		if i == len(f.PubKeys)-1 {
			builder.AddOp(txscript.OP_CHECKSIG)
		} else {
			builder.AddOp(txscript.OP_CHECKSIGVERIFY)
		}
	}

	return builder.Script()
}

func (f *MultisigClosure) Decode(script []byte) (bool, error) {
	valid, pubkeys, err := decodeMultisigScript(script)
	if err != nil || !valid {
		return false, err
	}

	f.PubKeys = pubkeys

	rebuilt, err := f.Script()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt, script), nil
}

func (f *MultisigClosure) WitnessSize(_ ...int) int {
	return 64 * len(f.PubKeys)
}

// Witness assembles the tapscript witness: one signature per key, in
// reverse key order, then the leaf script and control block. args is keyed
// by hex-encoded x-only public key.
func (f *MultisigClosure) Witness(
	controlBlock []byte, args map[string][]byte,
) (wire.TxWitness, error) {
	script, err := f.Script()
	if err != nil {
		return nil, err
	}

	witness := make(wire.TxWitness, 0, len(f.PubKeys)+2)
	for i := len(f.PubKeys) - 1; i >= 0; i-- {
		keyHex := hex.EncodeToString(schnorr.SerializePubKey(f.PubKeys[i]))
		sig, ok := args[keyHex]
		if !ok {
			return nil, fmt.Errorf("missing signature for key %s", keyHex)
		}
		witness = append(witness, sig)
	}

	witness = append(witness, script, controlBlock)
	return witness, nil
}

func (d *CSVMultisigClosure) Script() ([]byte, error) {
	csvScript, err := csvScript(d.Locktime)
	if err != nil {
		return nil, err
	}

	multisigScript, err := d.MultisigClosure.Script()
	if err != nil {
		return nil, err
	}

	return append(csvScript, multisigScript...), nil
}

func (d *CSVMultisigClosure) Decode(script []byte) (bool, error) {
	csvIndex := bytes.Index(
		script, []byte{txscript.OP_CHECKSEQUENCEVERIFY, txscript.OP_DROP},
	)
	if csvIndex == -1 || csvIndex == 0 {
		return false, nil
	}

	sequence := script[:csvIndex]
	if len(sequence) > 1 {
		sequence = sequence[1:]
	}

	locktime, err := common.BIP68DecodeSequence(sequence)
	if err != nil {
		return false, err
	}

	valid, err := d.MultisigClosure.Decode(script[csvIndex+2:])
	if err != nil || !valid {
		return false, err
	}

	d.Locktime = *locktime

	rebuilt, err := d.Script()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt, script), nil
}

func (d *CSVMultisigClosure) WitnessSize(_ ...int) int {
	return d.MultisigClosure.WitnessSize()
}

func (d *CSVMultisigClosure) Witness(
	controlBlock []byte, args map[string][]byte,
) (wire.TxWitness, error) {
	multisigWitness, err := d.MultisigClosure.Witness(controlBlock, args)
	if err != nil {
		return nil, err
	}

	script, err := d.Script()
	if err != nil {
		return nil, err
	}

	// the multisig witness embeds the multisig-only script, replace it
	multisigWitness[len(multisigWitness)-2] = script
	return multisigWitness, nil
}

func (d *CLTVMultisigClosure) Script() ([]byte, error) {
	cltvScript, err := cltvScript(d.Locktime)
	if err != nil {
		return nil, err
	}

	multisigScript, err := d.MultisigClosure.Script()
	if err != nil {
		return nil, err
	}

	return append(cltvScript, multisigScript...), nil
}

func (d *CLTVMultisigClosure) Decode(script []byte) (bool, error) {
	cltvIndex := bytes.Index(
		script, []byte{txscript.OP_CHECKLOCKTIMEVERIFY, txscript.OP_DROP},
	)
	if cltvIndex == -1 || cltvIndex == 0 {
		return false, nil
	}

	locktimeBytes := script[:cltvIndex]
	if len(locktimeBytes) > 1 {
		locktimeBytes = locktimeBytes[1:]
	}

	locktime, err := decodeLocktimeNumber(locktimeBytes)
	if err != nil {
		return false, err
	}

	valid, err := d.MultisigClosure.Decode(script[cltvIndex+2:])
	if err != nil || !valid {
		return false, err
	}

	d.Locktime = common.AbsoluteLocktime(locktime)

	rebuilt, err := d.Script()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt, script), nil
}

func (d *CLTVMultisigClosure) WitnessSize(_ ...int) int {
	return d.MultisigClosure.WitnessSize()
}

func (d *CLTVMultisigClosure) Witness(
	controlBlock []byte, args map[string][]byte,
) (wire.TxWitness, error) {
	multisigWitness, err := d.MultisigClosure.Witness(controlBlock, args)
	if err != nil {
		return nil, err
	}

	script, err := d.Script()
	if err != nil {
		return nil, err
	}

	multisigWitness[len(multisigWitness)-2] = script
	return multisigWitness, nil
}

func (c *ConditionMultisigClosure) Script() ([]byte, error) {
	if len(c.Condition) == 0 {
		return nil, fmt.Errorf("missing condition script")
	}

	multisigScript, err := c.MultisigClosure.Script()
	if err != nil {
		return nil, err
	}

	return append(append([]byte{}, c.Condition...), multisigScript...), nil
}

func (c *ConditionMultisigClosure) Decode(script []byte) (bool, error) {
	condition, rest, ok := splitHashCondition(script)
	if !ok {
		return false, nil
	}

	valid, err := c.MultisigClosure.Decode(rest)
	if err != nil || !valid {
		return false, err
	}

	c.Condition = condition

	rebuilt, err := c.Script()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt, script), nil
}

func (c *ConditionMultisigClosure) WitnessSize(conditionWitnessSizes ...int) int {
	size := c.MultisigClosure.WitnessSize()
	for _, s := range conditionWitnessSizes {
		size += s
	}
	return size
}

// Witness prepends the condition witness, read from
// args[ConditionWitnessKey], to the multisig witness.
func (c *ConditionMultisigClosure) Witness(
	controlBlock []byte, args map[string][]byte,
) (wire.TxWitness, error) {
	conditionWitness, err := conditionWitnessFromArgs(args)
	if err != nil {
		return nil, err
	}

	multisigWitness, err := c.MultisigClosure.Witness(controlBlock, args)
	if err != nil {
		return nil, err
	}

	script, err := c.Script()
	if err != nil {
		return nil, err
	}

	multisigWitness[len(multisigWitness)-2] = script
	return append(conditionWitness, multisigWitness...), nil
}

func (c *ConditionCSVMultisigClosure) Script() ([]byte, error) {
	if len(c.Condition) == 0 {
		return nil, fmt.Errorf("missing condition script")
	}

	csv, err := csvScript(c.Locktime)
	if err != nil {
		return nil, err
	}

	multisigScript, err := c.MultisigClosure.Script()
	if err != nil {
		return nil, err
	}

	script := append([]byte{}, csv...)
	script = append(script, c.Condition...)
	return append(script, multisigScript...), nil
}

func (c *ConditionCSVMultisigClosure) Decode(script []byte) (bool, error) {
	csvIndex := bytes.Index(
		script, []byte{txscript.OP_CHECKSEQUENCEVERIFY, txscript.OP_DROP},
	)
	if csvIndex == -1 || csvIndex == 0 {
		return false, nil
	}

	sequence := script[:csvIndex]
	if len(sequence) > 1 {
		sequence = sequence[1:]
	}

	locktime, err := common.BIP68DecodeSequence(sequence)
	if err != nil {
		return false, err
	}

	condition, rest, ok := splitHashCondition(script[csvIndex+2:])
	if !ok {
		return false, nil
	}

	valid, err := c.MultisigClosure.Decode(rest)
	if err != nil || !valid {
		return false, err
	}

	c.Locktime = *locktime
	c.Condition = condition

	rebuilt, err := c.Script()
	if err != nil {
		return false, err
	}

	return bytes.Equal(rebuilt, script), nil
}

func (c *ConditionCSVMultisigClosure) WitnessSize(conditionWitnessSizes ...int) int {
	size := c.MultisigClosure.WitnessSize()
	for _, s := range conditionWitnessSizes {
		size += s
	}
	return size
}

func (c *ConditionCSVMultisigClosure) Witness(
	controlBlock []byte, args map[string][]byte,
) (wire.TxWitness, error) {
	conditionWitness, err := conditionWitnessFromArgs(args)
	if err != nil {
		return nil, err
	}

	multisigWitness, err := c.MultisigClosure.Witness(controlBlock, args)
	if err != nil {
		return nil, err
	}

	script, err := c.Script()
	if err != nil {
		return nil, err
	}

	multisigWitness[len(multisigWitness)-2] = script
	return append(conditionWitness, multisigWitness...), nil
}

func conditionWitnessFromArgs(args map[string][]byte) (wire.TxWitness, error) {
	serialized, ok := args[ConditionWitnessKey]
	if !ok {
		return nil, fmt.Errorf("missing condition witness")
	}

	witness, err := ReadTxWitness(serialized)
	if err != nil {
		return nil, err
	}

	if len(witness) == 0 {
		return nil, fmt.Errorf("empty condition witness")
	}

	return witness, nil
}

// splitHashCondition recognises the HASH160 <20B> EQUALVERIFY prefix and
// returns it along with the remaining script.
func splitHashCondition(script []byte) (condition, rest []byte, ok bool) {
	const gateLen = 1 + 1 + 20 + 1
	if len(script) < gateLen {
		return nil, nil, false
	}
	if script[0] != txscript.OP_HASH160 ||
		script[1] != txscript.OP_DATA_20 ||
		script[gateLen-1] != txscript.OP_EQUALVERIFY {
		return nil, nil, false
	}
	return script[:gateLen], script[gateLen:], true
}

// decodeMultisigScript walks <pk> CHECKSIGVERIFY ... <pk> CHECKSIG
func decodeMultisigScript(script []byte) (bool, []*secp256k1.PublicKey, error) {
	pubkeys := make([]*secp256k1.PublicKey, 0)

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	expectKey := true
	terminated := false

	for tokenizer.Next() {
		if terminated {
			// trailing opcodes after the final CHECKSIG
			return false, nil, nil
		}

		if expectKey {
			if tokenizer.Opcode() != txscript.OP_DATA_32 {
				return false, nil, nil
			}
			pubkey, err := schnorr.ParsePubKey(tokenizer.Data())
			if err != nil {
				return false, nil, err
			}
			pubkeys = append(pubkeys, pubkey)
			expectKey = false
			continue
		}

		switch tokenizer.Opcode() {
		case txscript.OP_CHECKSIGVERIFY:
			expectKey = true
		case txscript.OP_CHECKSIG:
			terminated = true
		default:
			return false, nil, nil
		}
	}

	if err := tokenizer.Err(); err != nil {
		return false, nil, nil
	}

	if !terminated || len(pubkeys) == 0 {
		return false, nil, nil
	}

	return true, pubkeys, nil
}

// <sequence> CHECKSEQUENCEVERIFY DROP
func csvScript(locktime common.RelativeLocktime) ([]byte, error) {
	sequence, err := common.BIP68Sequence(locktime)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddInt64(int64(sequence)).
		AddOps([]byte{
			txscript.OP_CHECKSEQUENCEVERIFY,
			txscript.OP_DROP,
		}).
		Script()
}

// <locktime> CHECKLOCKTIMEVERIFY DROP
func cltvScript(locktime common.AbsoluteLocktime) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddInt64(int64(locktime)).
		AddOps([]byte{
			txscript.OP_CHECKLOCKTIMEVERIFY,
			txscript.OP_DROP,
		}).
		Script()
}

func decodeLocktimeNumber(data []byte) (uint32, error) {
	scriptNumber, err := txscript.MakeScriptNum(data, true, len(data))
	if err != nil {
		return 0, err
	}

	if scriptNumber >= txscript.OP_1 && scriptNumber <= txscript.OP_16 {
		scriptNumber = scriptNumber - (txscript.OP_1 - 1)
	}

	return uint32(scriptNumber), nil
}
