package tree

import (
	"encoding/hex"
	"fmt"

	"github.com/ark-network/ark-client-go/common"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

type VtxoScript common.VtxoScript[bitcoinTapTree, Closure]

// NewDefaultVtxoScript returns the standard vtxo policy:
//   - forfeit: multisig(owner, server)
//   - exit: owner alone after the relative exit delay
func NewDefaultVtxoScript(
	owner, server *secp256k1.PublicKey, exitDelay common.RelativeLocktime,
) *TapscriptsVtxoScript {
	return &TapscriptsVtxoScript{
		Closures: []Closure{
			&MultisigClosure{PubKeys: []*secp256k1.PublicKey{owner, server}},
			&CSVMultisigClosure{
				MultisigClosure: MultisigClosure{PubKeys: []*secp256k1.PublicKey{owner}},
				Locktime:        exitDelay,
			},
		},
	}
}

// NewBoardingVtxoScript returns the boarding utxo policy, identical to the
// default vtxo except the exit path uses an absolute timelock.
func NewBoardingVtxoScript(
	owner, server *secp256k1.PublicKey, exitLocktime common.AbsoluteLocktime,
) *TapscriptsVtxoScript {
	return &TapscriptsVtxoScript{
		Closures: []Closure{
			&MultisigClosure{PubKeys: []*secp256k1.PublicKey{owner, server}},
			&CLTVMultisigClosure{
				MultisigClosure: MultisigClosure{PubKeys: []*secp256k1.PublicKey{owner}},
				Locktime:        exitLocktime,
			},
		},
	}
}

// ParseVtxoScript decodes a list of hex-encoded tapscripts into a vtxo
// script.
func ParseVtxoScript(tapscripts []string) (VtxoScript, error) {
	if len(tapscripts) == 0 {
		return nil, fmt.Errorf("empty tapscripts list")
	}

	closures := make([]Closure, 0, len(tapscripts))
	for _, tapscript := range tapscripts {
		script, err := hex.DecodeString(tapscript)
		if err != nil {
			return nil, fmt.Errorf("invalid tapscript hex: %w", err)
		}

		closure, err := DecodeClosure(script)
		if err != nil {
			return nil, err
		}

		closures = append(closures, closure)
	}

	return &TapscriptsVtxoScript{Closures: closures}, nil
}

// TapscriptsVtxoScript is a vtxo script built from an arbitrary set of
// closures.
type TapscriptsVtxoScript struct {
	Closures []Closure
}

func (v *TapscriptsVtxoScript) Encode() ([]string, error) {
	encoded := make([]string, 0, len(v.Closures))
	for _, closure := range v.Closures {
		script, err := closure.Script()
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, hex.EncodeToString(script))
	}
	return encoded, nil
}

func (v *TapscriptsVtxoScript) ForfeitClosures() []Closure {
	forfeits := make([]Closure, 0)
	for _, closure := range v.Closures {
		switch closure.(type) {
		case *MultisigClosure, *CLTVMultisigClosure, *ConditionMultisigClosure:
			forfeits = append(forfeits, closure)
		}
	}
	return forfeits
}

func (v *TapscriptsVtxoScript) ExitClosures() []Closure {
	exits := make([]Closure, 0)
	for _, closure := range v.Closures {
		switch closure.(type) {
		case *CSVMultisigClosure, *ConditionCSVMultisigClosure:
			exits = append(exits, closure)
		}
	}
	return exits
}

// SmallestExitDelay returns the smallest relative locktime among the exit
// closures.
func (v *TapscriptsVtxoScript) SmallestExitDelay() (*common.RelativeLocktime, error) {
	var smallest *common.RelativeLocktime

	for _, closure := range v.Closures {
		var locktime common.RelativeLocktime
		switch c := closure.(type) {
		case *CSVMultisigClosure:
			locktime = c.Locktime
		case *ConditionCSVMultisigClosure:
			locktime = c.Locktime
		default:
			continue
		}

		if smallest == nil || locktime.LessThan(*smallest) {
			copied := locktime
			smallest = &copied
		}
	}

	if smallest == nil {
		return nil, fmt.Errorf("no exit closure found")
	}

	return smallest, nil
}

func (v *TapscriptsVtxoScript) TapTree() (*secp256k1.PublicKey, bitcoinTapTree, error) {
	leaves := make([]txscript.TapLeaf, 0, len(v.Closures))
	for _, closure := range v.Closures {
		script, err := closure.Script()
		if err != nil {
			return nil, bitcoinTapTree{}, err
		}
		leaves = append(leaves, txscript.NewBaseTapLeaf(script))
	}

	tapTree := txscript.AssembleTaprootScriptTree(leaves...)

	root := tapTree.RootNode.TapHash()
	taprootKey := txscript.ComputeTaprootOutputKey(
		UnspendableKey(),
		root[:],
	)

	return taprootKey, bitcoinTapTree{tapTree}, nil
}

// bitcoinTapTree is a wrapper around txscript.IndexedTapScriptTree to
// implement the common.TaprootTree interface.
type bitcoinTapTree struct {
	*txscript.IndexedTapScriptTree
}

func (b bitcoinTapTree) GetRoot() chainhash.Hash {
	return b.RootNode.TapHash()
}

func (b bitcoinTapTree) GetTaprootMerkleProof(leafhash chainhash.Hash) (*common.TaprootMerkleProof, error) {
	index, ok := b.LeafProofIndex[leafhash]
	if !ok {
		return nil, fmt.Errorf("leaf %s not found in tree", leafhash.String())
	}
	proof := b.LeafMerkleProofs[index]

	controlBlock := proof.ToControlBlock(UnspendableKey())
	controlBlockBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, err
	}

	return &common.TaprootMerkleProof{
		ControlBlock: controlBlockBytes,
		Script:       proof.Script,
	}, nil
}

func (b bitcoinTapTree) GetLeaves() []chainhash.Hash {
	leafHashes := make([]chainhash.Hash, 0)
	for hash := range b.LeafProofIndex {
		leafHashes = append(leafHashes, hash)
	}
	return leafHashes
}
