package arksdk

import (
	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/wallet"
)

// SettleOptions tweaks one settlement session.
type SettleOptions struct {
	ExtraSignerSessions   []tree.SignerSession
	WalletSignerDisabled  bool
	SignAll               bool
	EventsCh              chan<- client.RoundEvent
	WithExpirySortedCoins bool

	// Identity overrides the wallet for transaction signing, used by the
	// vhtlc claim path to inject the preimage witness.
	Identity wallet.WalletService
}

type Option func(*SettleOptions) error

// WithEventsCh allows the caller to receive a copy of the round events.
func WithEventsCh(ch chan<- client.RoundEvent) Option {
	return func(o *SettleOptions) error {
		o.EventsCh = ch
		return nil
	}
}

// WithExtraSigner adds extra musig2 signing sessions to the settlement.
func WithExtraSigner(signerSessions ...tree.SignerSession) Option {
	return func(o *SettleOptions) error {
		o.ExtraSignerSessions = append(o.ExtraSignerSessions, signerSessions...)
		return nil
	}
}

// WithoutWalletSigner disables the wallet's own tree signer, at least one
// extra signer must be provided.
func WithoutWalletSigner() Option {
	return func(o *SettleOptions) error {
		o.WalletSignerDisabled = true
		return nil
	}
}

// WithSignAll asks the server to make the client cosign the whole vtxo
// tree instead of only its own branch.
func WithSignAll() Option {
	return func(o *SettleOptions) error {
		o.SignAll = true
		return nil
	}
}

// WithExpirySortedCoins selects coins expiring first.
func WithExpirySortedCoins() Option {
	return func(o *SettleOptions) error {
		o.WithExpirySortedCoins = true
		return nil
	}
}

// WithIdentity overrides the signing identity for this settlement.
func WithIdentity(identity wallet.WalletService) Option {
	return func(o *SettleOptions) error {
		o.Identity = identity
		return nil
	}
}
