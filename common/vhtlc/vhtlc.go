// Package vhtlc implements the virtual hash-time-locked contract: a vtxo
// whose spending policy encodes a hash-preimage swap, a collaborative
// refund branch and three unilateral exits.
package vhtlc

import (
	"fmt"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Opts carries the parameters of a VHTLC.
type Opts struct {
	Sender       *secp256k1.PublicKey
	Receiver     *secp256k1.PublicKey
	Server       *secp256k1.PublicKey
	PreimageHash []byte // HASH160 of the preimage

	// RefundLocktime is the absolute locktime gating the refund path that
	// does not require the receiver.
	RefundLocktime common.AbsoluteLocktime

	// The three unilateral delays are relative locktimes, strictly ordered
	// so the claim path always confirms before any refund path.
	UnilateralClaimDelay                 common.RelativeLocktime
	UnilateralRefundDelay                common.RelativeLocktime
	UnilateralRefundWithoutReceiverDelay common.RelativeLocktime
}

func (o Opts) validate() error {
	if len(o.PreimageHash) != 20 {
		return fmt.Errorf("invalid preimage hash length %d, expected 20", len(o.PreimageHash))
	}
	if o.Sender == nil {
		return fmt.Errorf("missing sender public key")
	}
	if o.Receiver == nil {
		return fmt.Errorf("missing receiver public key")
	}
	if o.Server == nil {
		return fmt.Errorf("missing server public key")
	}
	if o.RefundLocktime == 0 {
		return fmt.Errorf("missing refund locktime")
	}

	for _, delay := range []common.RelativeLocktime{
		o.UnilateralClaimDelay, o.UnilateralRefundDelay, o.UnilateralRefundWithoutReceiverDelay,
	} {
		if delay.Value == 0 {
			return fmt.Errorf("missing unilateral delay")
		}
		if delay.Type == common.LocktimeTypeSecond && delay.Value%512 != 0 {
			return fmt.Errorf("seconds delay must be a multiple of 512")
		}
	}

	if !o.UnilateralClaimDelay.LessThan(o.UnilateralRefundDelay) {
		return fmt.Errorf("unilateral claim delay must be strictly less than unilateral refund delay")
	}
	if !o.UnilateralRefundDelay.LessThan(o.UnilateralRefundWithoutReceiverDelay) {
		return fmt.Errorf("unilateral refund delay must be strictly less than unilateral refund without receiver delay")
	}

	return nil
}

// VHTLCScript is the six-leaf vtxo script of a VHTLC.
type VHTLCScript struct {
	tree.TapscriptsVtxoScript

	Opts Opts

	claim                           *tree.ConditionMultisigClosure
	refund                          *tree.MultisigClosure
	refundWithoutReceiver           *tree.CLTVMultisigClosure
	unilateralClaim                 *tree.ConditionCSVMultisigClosure
	unilateralRefund                *tree.CSVMultisigClosure
	unilateralRefundWithoutReceiver *tree.CSVMultisigClosure
}

// NewVHTLCScript builds the VHTLC script tree from the given options.
func NewVHTLCScript(opts Opts) (*VHTLCScript, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	condition, err := tree.HashCondition(opts.PreimageHash)
	if err != nil {
		return nil, err
	}

	claim := &tree.ConditionMultisigClosure{
		Condition: condition,
		MultisigClosure: tree.MultisigClosure{
			PubKeys: []*secp256k1.PublicKey{opts.Receiver, opts.Server},
		},
	}

	refund := &tree.MultisigClosure{
		PubKeys: []*secp256k1.PublicKey{opts.Sender, opts.Receiver, opts.Server},
	}

	refundWithoutReceiver := &tree.CLTVMultisigClosure{
		Locktime: opts.RefundLocktime,
		MultisigClosure: tree.MultisigClosure{
			PubKeys: []*secp256k1.PublicKey{opts.Sender, opts.Server},
		},
	}

	unilateralClaim := &tree.ConditionCSVMultisigClosure{
		Condition: condition,
		CSVMultisigClosure: tree.CSVMultisigClosure{
			Locktime: opts.UnilateralClaimDelay,
			MultisigClosure: tree.MultisigClosure{
				PubKeys: []*secp256k1.PublicKey{opts.Receiver},
			},
		},
	}

	unilateralRefund := &tree.CSVMultisigClosure{
		Locktime: opts.UnilateralRefundDelay,
		MultisigClosure: tree.MultisigClosure{
			PubKeys: []*secp256k1.PublicKey{opts.Sender, opts.Receiver},
		},
	}

	unilateralRefundWithoutReceiver := &tree.CSVMultisigClosure{
		Locktime: opts.UnilateralRefundWithoutReceiverDelay,
		MultisigClosure: tree.MultisigClosure{
			PubKeys: []*secp256k1.PublicKey{opts.Sender},
		},
	}

	return &VHTLCScript{
		TapscriptsVtxoScript: tree.TapscriptsVtxoScript{
			Closures: []tree.Closure{
				claim,
				refund,
				refundWithoutReceiver,
				unilateralClaim,
				unilateralRefund,
				unilateralRefundWithoutReceiver,
			},
		},
		Opts:                            opts,
		claim:                           claim,
		refund:                          refund,
		refundWithoutReceiver:           refundWithoutReceiver,
		unilateralClaim:                 unilateralClaim,
		unilateralRefund:                unilateralRefund,
		unilateralRefundWithoutReceiver: unilateralRefundWithoutReceiver,
	}, nil
}

// ClaimTapscript returns the off-chain claim path: preimage gate plus
// multisig(receiver, server).
func (v *VHTLCScript) ClaimTapscript() (*waddrmgr.Tapscript, error) {
	return v.tapscript(v.claim)
}

// RefundTapscript returns the refund path: collaborative 3-of-3 when
// withReceiver is set, otherwise the CLTV-gated multisig(sender, server).
func (v *VHTLCScript) RefundTapscript(withReceiver bool) (*waddrmgr.Tapscript, error) {
	if withReceiver {
		return v.tapscript(v.refund)
	}
	return v.tapscript(v.refundWithoutReceiver)
}

// UnilateralClaimTapscript returns the on-chain claim path.
func (v *VHTLCScript) UnilateralClaimTapscript() (*waddrmgr.Tapscript, error) {
	return v.tapscript(v.unilateralClaim)
}

// UnilateralRefundTapscript returns the on-chain collaborative refund path.
func (v *VHTLCScript) UnilateralRefundTapscript() (*waddrmgr.Tapscript, error) {
	return v.tapscript(v.unilateralRefund)
}

// UnilateralRefundWithoutReceiverTapscript returns the on-chain sender-only
// refund path.
func (v *VHTLCScript) UnilateralRefundWithoutReceiverTapscript() (*waddrmgr.Tapscript, error) {
	return v.tapscript(v.unilateralRefundWithoutReceiver)
}

func (v *VHTLCScript) tapscript(closure tree.Closure) (*waddrmgr.Tapscript, error) {
	script, err := closure.Script()
	if err != nil {
		return nil, err
	}

	_, tapTree, err := v.TapTree()
	if err != nil {
		return nil, err
	}

	leaf := txscript.NewBaseTapLeaf(script)
	proof, err := tapTree.GetTaprootMerkleProof(leaf.TapHash())
	if err != nil {
		return nil, err
	}

	controlBlock, err := txscript.ParseControlBlock(proof.ControlBlock)
	if err != nil {
		return nil, err
	}

	return &waddrmgr.Tapscript{
		RevealedScript: proof.Script,
		ControlBlock:   controlBlock,
	}, nil
}

// GetRevealedTapscripts returns the hex-encoded leaves of the script tree.
func (v *VHTLCScript) GetRevealedTapscripts() []string {
	encoded, _ := v.Encode()
	return encoded
}

// Address returns the off-chain ark address of the VHTLC.
func (v *VHTLCScript) Address(hrp string, server *secp256k1.PublicKey) (string, error) {
	tapKey, _, err := v.TapTree()
	if err != nil {
		return "", err
	}

	addr := &common.Address{
		HRP:        hrp,
		Server:     server,
		VtxoTapKey: tapKey,
	}

	return addr.Encode()
}

// OnchainAddress returns the P2TR address of the VHTLC for unilateral
// paths.
func (v *VHTLCScript) OnchainAddress(netParams *chaincfg.Params) (string, error) {
	tapKey, _, err := v.TapTree()
	if err != nil {
		return "", err
	}

	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tapKey), netParams)
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}
