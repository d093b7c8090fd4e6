package common

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var ErrLeafNotFound = errors.New("leaf not found in taproot tree")

type TaprootMerkleProof struct {
	ControlBlock []byte
	Script       []byte
}

type TaprootTree interface {
	GetTaprootMerkleProof(leafhash chainhash.Hash) (*TaprootMerkleProof, error)
	GetRoot() chainhash.Hash
	GetLeaves() []chainhash.Hash
}

// VtxoScript is the generic contract of a vtxo spending policy: a set of
// closures assembled into a taproot tree with an unspendable internal key.
type VtxoScript[T TaprootTree, C any] interface {
	TapTree() (taprootKey *secp256k1.PublicKey, taprootScriptTree T, err error)
	Encode() ([]string, error)
	ForfeitClosures() []C
	ExitClosures() []C
}
