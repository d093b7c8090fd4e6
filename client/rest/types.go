package restclient

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

type outpointDTO struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

type inputDTO struct {
	Outpoint   outpointDTO `json:"outpoint"`
	Tapscripts []string    `json:"tapscripts"`
}

type outputDTO struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type registerInputsRequest struct {
	Inputs []inputDTO `json:"inputs"`
	Notes  []string   `json:"notes,omitempty"`
}

type registerInputsResponse struct {
	RequestID string `json:"requestId"`
}

type registerOutputsRequest struct {
	RequestID           string      `json:"requestId"`
	Outputs             []outputDTO `json:"outputs"`
	CosignersPublicKeys []string    `json:"cosignersPublicKeys"`
	SignAll             bool        `json:"signAll,omitempty"`
}

type submitTreeNoncesRequest struct {
	RoundID    string `json:"roundId"`
	Pubkey     string `json:"pubkey"`
	TreeNonces string `json:"treeNonces"` // hex encoded matrix
}

type submitTreeSignaturesRequest struct {
	RoundID        string `json:"roundId"`
	Pubkey         string `json:"pubkey"`
	TreeSignatures string `json:"treeSignatures"` // hex encoded matrix
}

type submitForfeitTxsRequest struct {
	SignedForfeitTxs []string `json:"signedForfeitTxs"`
	SignedRoundTx    string   `json:"signedRoundTx,omitempty"`
}

type submitRedeemTxRequest struct {
	RedeemTx string `json:"redeemTx"`
}

type submitRedeemTxResponse struct {
	Txid string `json:"txid"`
}

type infoResponse struct {
	Pubkey              string `json:"pubkey"`
	VtxoTreeExpiry      int64  `json:"vtxoTreeExpiry"`
	UnilateralExitDelay int64  `json:"unilateralExitDelay"`
	BoardingExitDelay   int64  `json:"boardingExitDelay"`
	RoundInterval       int64  `json:"roundInterval"`
	Network             string `json:"network"`
	Dust                uint64 `json:"dust"`
	ForfeitAddress      string `json:"forfeitAddress"`
}

type vtxoDTO struct {
	Outpoint  outpointDTO `json:"outpoint"`
	PubKey    string      `json:"pubkey"`
	Amount    uint64      `json:"amount"`
	RoundTxid string      `json:"roundTxid"`
	ExpiresAt int64       `json:"expiresAt"`
	CreatedAt int64       `json:"createdAt"`
	IsPending bool        `json:"isPending"`
	IsSwept   bool        `json:"isSwept"`
	SpentBy   string      `json:"spentBy"`
}

func (v vtxoDTO) parse() client.Vtxo {
	return client.Vtxo{
		Outpoint: client.Outpoint{
			Txid: v.Outpoint.Txid,
			VOut: v.Outpoint.Vout,
		},
		PubKey:    v.PubKey,
		Amount:    v.Amount,
		RoundTxid: v.RoundTxid,
		ExpiresAt: time.Unix(v.ExpiresAt, 0),
		CreatedAt: time.Unix(v.CreatedAt, 0),
		IsPending: v.IsPending,
		IsSwept:   v.IsSwept,
		SpentBy:   v.SpentBy,
	}
}

type listVtxosResponse struct {
	SpendableVtxos []vtxoDTO `json:"spendableVtxos"`
	SpentVtxos     []vtxoDTO `json:"spentVtxos"`
}

type nodeDTO struct {
	Txid       string `json:"txid"`
	Tx         string `json:"tx"`
	ParentTxid string `json:"parentTxid"`
	Leaf       bool   `json:"leaf"`
}

type levelDTO struct {
	Nodes []nodeDTO `json:"nodes"`
}

type treeDTO struct {
	Levels []levelDTO `json:"levels"`
}

func (t treeDTO) parse() tree.TxTree {
	txTree := make(tree.TxTree, 0, len(t.Levels))
	for levelIndex, level := range t.Levels {
		nodes := make([]tree.Node, 0, len(level.Nodes))
		for nodeIndex, node := range level.Nodes {
			nodes = append(nodes, tree.Node{
				Txid:       node.Txid,
				Tx:         node.Tx,
				ParentTxid: node.ParentTxid,
				Level:      levelIndex,
				LevelIndex: nodeIndex,
				Leaf:       node.Leaf,
			})
		}
		txTree = append(txTree, nodes)
	}
	return txTree
}

// eventWrapper is one line of the newline-delimited event stream, carrying
// exactly one of the event payloads.
type eventWrapper struct {
	Result eventDTO `json:"result"`
}

type eventDTO struct {
	BatchStarted                *batchStartedDTO      `json:"batchStarted,omitempty"`
	RoundSigning                *roundSigningDTO      `json:"roundSigning,omitempty"`
	RoundSigningNoncesGenerated *roundNoncesDTO       `json:"roundSigningNoncesGenerated,omitempty"`
	RoundFinalization           *roundFinalizationDTO `json:"roundFinalization,omitempty"`
	RoundFinalized              *roundFinalizedDTO    `json:"roundFinalized,omitempty"`
	RoundFailed                 *roundFailedDTO       `json:"roundFailed,omitempty"`
	// tree broadcast events are not consumed by this client
	BatchTree          map[string]any `json:"batchTree,omitempty"`
	BatchTreeSignature map[string]any `json:"batchTreeSignature,omitempty"`
}

type batchStartedDTO struct {
	ID string `json:"id"`
}

type roundSigningDTO struct {
	ID               string   `json:"id"`
	CosignersPubkeys []string `json:"cosignersPubkeys"`
	UnsignedVtxoTree treeDTO  `json:"unsignedVtxoTree"`
	UnsignedRoundTx  string   `json:"unsignedRoundTx"`
}

type roundNoncesDTO struct {
	ID         string `json:"id"`
	TreeNonces string `json:"treeNonces"` // hex encoded matrix
}

type roundFinalizationDTO struct {
	ID              string                 `json:"id"`
	RoundTx         string                 `json:"roundTx"`
	VtxoTree        treeDTO                `json:"vtxoTree"`
	Connectors      treeDTO                `json:"connectors"`
	ConnectorsIndex map[string]outpointDTO `json:"connectorsIndex"`
	MinRelayFeeRate int64                  `json:"minRelayFeeRate"` // sats/kvb
}

type roundFinalizedDTO struct {
	ID        string `json:"id"`
	RoundTxid string `json:"roundTxid"`
}

type roundFailedDTO struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (e eventDTO) parse() (client.RoundEvent, error) {
	switch {
	case e.BatchStarted != nil:
		return client.BatchStartedEvent{ID: e.BatchStarted.ID}, nil
	case e.RoundSigning != nil:
		return client.RoundSigningStartedEvent{
			ID:               e.RoundSigning.ID,
			UnsignedTree:     e.RoundSigning.UnsignedVtxoTree.parse(),
			CosignersPubkeys: e.RoundSigning.CosignersPubkeys,
			UnsignedRoundTx:  e.RoundSigning.UnsignedRoundTx,
		}, nil
	case e.RoundSigningNoncesGenerated != nil:
		nonces, err := decodeNonces(e.RoundSigningNoncesGenerated.TreeNonces)
		if err != nil {
			return nil, err
		}
		return client.RoundSigningNoncesGeneratedEvent{
			ID:     e.RoundSigningNoncesGenerated.ID,
			Nonces: nonces,
		}, nil
	case e.RoundFinalization != nil:
		connectorsIndex := make(map[string]client.Outpoint)
		for key, outpoint := range e.RoundFinalization.ConnectorsIndex {
			connectorsIndex[key] = client.Outpoint{
				Txid: outpoint.Txid,
				VOut: outpoint.Vout,
			}
		}
		return client.RoundFinalizationEvent{
			ID:              e.RoundFinalization.ID,
			Tx:              e.RoundFinalization.RoundTx,
			Tree:            e.RoundFinalization.VtxoTree.parse(),
			Connectors:      e.RoundFinalization.Connectors.parse(),
			ConnectorsIndex: connectorsIndex,
			MinRelayFeeRate: chainfee.SatPerKVByte(e.RoundFinalization.MinRelayFeeRate),
		}, nil
	case e.RoundFinalized != nil:
		return client.RoundFinalizedEvent{
			ID:   e.RoundFinalized.ID,
			Txid: e.RoundFinalized.RoundTxid,
		}, nil
	case e.RoundFailed != nil:
		return client.RoundFailedEvent{
			ID:     e.RoundFailed.ID,
			Reason: e.RoundFailed.Reason,
		}, nil
	case e.BatchTree != nil, e.BatchTreeSignature != nil:
		// known but unused by the settlement engine
		return nil, nil
	default:
		return nil, &client.ProtocolError{Message: "unknown event"}
	}
}

func decodeNonces(encoded string) (tree.TreeNonces, error) {
	buf, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, &client.ProtocolError{
			Message: fmt.Sprintf("invalid tree nonces: %s", err),
		}
	}

	return tree.DecodeNonces(bytes.NewReader(buf))
}
