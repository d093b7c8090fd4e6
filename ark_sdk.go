// Package arksdk is a self-custodial Ark wallet: it builds the taproot
// scripts protecting vtxos, takes part in the musig2 vtxo tree signing of
// each settlement and produces the forfeit transactions handed to the
// server.
package arksdk

import (
	"context"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/types"
)

type ArkClient interface {
	GetConfigData(ctx context.Context) (*types.Config, error)
	Init(ctx context.Context, args InitArgs) error
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context, password string) error
	IsLocked(ctx context.Context) bool
	Balance(ctx context.Context) (*Balance, error)
	Receive(ctx context.Context) (offchainAddr, boardingAddr string, err error)
	Settle(ctx context.Context, opts ...Option) (string, error)
	SendOffChain(
		ctx context.Context, receivers []Receiver, opts ...Option,
	) (string, error)
	RedeemNotes(
		ctx context.Context, notes []string, amount uint64, opts ...Option,
	) (string, error)
	ListVtxos(ctx context.Context) (spendable, spent []client.Vtxo, err error)
	Stop()
}

type Receiver struct {
	To     string // onchain or offchain address
	Amount uint64
}

type Balance struct {
	OffchainBalance uint64
	BoardingBalance uint64
}
