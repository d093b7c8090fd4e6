package vhtlc

import (
	"context"
	"strings"

	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/explorer"
	"github.com/ark-network/ark-client-go/wallet"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// claimSigner wraps an identity so that signing a claim transaction first
// injects the preimage as the condition witness of input 0. After
// finalization of the claim leaf the witness stack reads [preimage, server
// sig, receiver sig, script, control block].
type claimSigner struct {
	wallet.WalletService

	preimage []byte
}

// NewClaimSigner returns an identity claiming a VHTLC with the given
// preimage.
func NewClaimSigner(inner wallet.WalletService, preimage []byte) wallet.WalletService {
	return &claimSigner{
		WalletService: inner,
		preimage:      preimage,
	}
}

func (s *claimSigner) SignTransaction(
	ctx context.Context, explorerSvc explorer.Explorer, tx string,
	inputIndexes ...int,
) (string, error) {
	ptx, err := psbt.NewFromRawBytes(strings.NewReader(tx), true)
	if err != nil {
		return "", err
	}

	if err := tree.AddConditionWitness(
		0, ptx, wire.TxWitness{s.preimage},
	); err != nil {
		return "", err
	}

	withWitness, err := ptx.B64Encode()
	if err != nil {
		return "", err
	}

	return s.WalletService.SignTransaction(ctx, explorerSvc, withWitness, inputIndexes...)
}
