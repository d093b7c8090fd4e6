// Package wallet defines the identity contract of the client: a key holder
// exposing schnorr signing over annotated tapscript inputs and a musig2
// signer session factory for the vtxo tree.
package wallet

import (
	"context"

	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/explorer"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	SingleKeyWallet = "singlekey"
)

type WalletService interface {
	GetType() string
	Create(ctx context.Context, password, seed string) (walletSeed string, err error)
	Lock(ctx context.Context, password string) error
	Unlock(ctx context.Context, password string) (alreadyUnlocked bool, err error)
	IsLocked() bool
	Dump(ctx context.Context) (seed string, err error)
	PubKey(ctx context.Context) (*secp256k1.PublicKey, error)
	GetAddresses(ctx context.Context) (
		offchainAddresses, boardingAddresses, redemptionAddresses []TapscriptsAddress,
		err error,
	)
	NewAddress(ctx context.Context, change bool) (
		offchainAddr, boardingAddr *TapscriptsAddress, err error,
	)
	// SignTransaction adds schnorr signatures to the inputs of the given psbt
	// without finalizing them. When inputIndexes is empty every input the
	// wallet can sign is signed.
	SignTransaction(
		ctx context.Context, explorerSvc explorer.Explorer, tx string,
		inputIndexes ...int,
	) (signedTx string, err error)
	SignMessage(ctx context.Context, message []byte) (signature string, err error)
	// NewVtxoTreeSigner derives an ephemeral key from the given derivation
	// path and returns the musig2 signer session used to cosign the vtxo
	// tree.
	NewVtxoTreeSigner(
		ctx context.Context, derivationPath string,
	) (tree.SignerSession, error)
}

type TapscriptsAddress struct {
	Tapscripts []string
	Address    string
}
