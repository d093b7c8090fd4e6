package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const (
	RestClient = "rest"
)

type RoundEvent interface {
	isRoundEvent()
}

// TransportClient is the contract the settlement engine consumes to talk to
// the Ark server.
type TransportClient interface {
	GetInfo(ctx context.Context) (*Info, error)
	RegisterInputsForNextRound(
		ctx context.Context, inputs []Input, notes []string,
	) (string, error)
	RegisterOutputsForNextRound(
		ctx context.Context, requestID string, outputs []Output,
		cosignersPublicKeys []string, signAll bool,
	) error
	SubmitTreeNonces(
		ctx context.Context, roundID, cosignerPubkey string, nonces tree.TreeNonces,
	) error
	SubmitTreeSignatures(
		ctx context.Context, roundID, cosignerPubkey string, signatures tree.TreePartialSigs,
	) error
	SubmitSignedForfeitTxs(
		ctx context.Context, signedForfeitTxs []string, signedRoundTx string,
	) error
	GetEventStream(ctx context.Context) (<-chan RoundEventChannel, func(), error)
	Ping(ctx context.Context, requestID string) error
	SubmitRedeemTx(ctx context.Context, signedRedeemTx string) (string, error)
	ListVtxos(ctx context.Context, addr string) (spendable, spent []Vtxo, err error)
	Close()
}

type Info struct {
	PubKey              string
	VtxoTreeExpiry      int64
	UnilateralExitDelay int64
	BoardingExitDelay   int64
	RoundInterval       int64
	Network             string
	Dust                uint64
	ForfeitAddress      string
}

type RoundEventChannel struct {
	Event RoundEvent
	Err   error
}

type Outpoint struct {
	Txid string
	VOut uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%s", o.Txid, strconv.Itoa(int(o.VOut)))
}

func (o Outpoint) Equals(other Outpoint) bool {
	return o.Txid == other.Txid && o.VOut == other.VOut
}

// Input is a spendable settlement input: a vtxo or boarding outpoint along
// with the tapscripts composing its script tree. Note inputs are opaque
// strings forwarded as-is at registration.
type Input struct {
	Outpoint
	Tapscripts []string
}

type Vtxo struct {
	Outpoint
	PubKey    string // hex x-only taproot output key
	Amount    uint64
	RoundTxid string
	ExpiresAt time.Time
	CreatedAt time.Time
	IsPending bool
	IsSwept   bool
	SpentBy   string
}

func (v Vtxo) Address(server *secp256k1.PublicKey, net common.Network) (string, error) {
	pubkeyBytes, err := hex.DecodeString(v.PubKey)
	if err != nil {
		return "", err
	}

	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return "", err
	}

	a := &common.Address{
		HRP:        net.Addr,
		Server:     server,
		VtxoTapKey: pubkey,
	}

	return a.Encode()
}

type TapscriptsVtxo struct {
	Vtxo
	Tapscripts []string
}

type Output struct {
	Address string // onchain or offchain address
	Amount  uint64
}

type BatchStartedEvent struct {
	ID string
}

func (e BatchStartedEvent) isRoundEvent() {}

type RoundFinalizationEvent struct {
	ID              string
	Tx              string
	Tree            tree.TxTree
	Connectors      tree.TxTree
	ConnectorsIndex map[string]Outpoint // vtxo outpoint -> connector outpoint
	MinRelayFeeRate chainfee.SatPerKVByte
}

func (e RoundFinalizationEvent) isRoundEvent() {}

type RoundFinalizedEvent struct {
	ID   string
	Txid string
}

func (e RoundFinalizedEvent) isRoundEvent() {}

type RoundFailedEvent struct {
	ID     string
	Reason string
}

func (e RoundFailedEvent) isRoundEvent() {}

type RoundSigningStartedEvent struct {
	ID               string
	UnsignedTree     tree.TxTree
	CosignersPubkeys []string
	UnsignedRoundTx  string
}

func (e RoundSigningStartedEvent) isRoundEvent() {}

type RoundSigningNoncesGeneratedEvent struct {
	ID     string
	Nonces tree.TreeNonces
}

func (e RoundSigningNoncesGeneratedEvent) isRoundEvent() {}
