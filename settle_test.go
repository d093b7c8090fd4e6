package arksdk

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/explorer"
	inmemorystore "github.com/ark-network/ark-client-go/store/inmemory"
	"github.com/ark-network/ark-client-go/types"
	singlekeywallet "github.com/ark-network/ark-client-go/wallet/singlekey"
	walletinmemorystore "github.com/ark-network/ark-client-go/wallet/singlekey/store/inmemory"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

var roundTxid = strings.Repeat("aa", 32)

type mockTransport struct {
	mu sync.Mutex

	eventsCh chan client.RoundEventChannel

	pingCount         int
	registeredInputs  []client.Input
	registeredNotes   []string
	registeredOutputs []client.Output
	cosignerKeys      []string
	nonces            map[string]tree.TreeNonces
	signatures        map[string]tree.TreePartialSigs
	forfeitTxs        []string
	signedRoundTx     string
	spendableVtxos    []client.Vtxo

	outputsRegistered   chan struct{}
	noncesSubmitted     chan struct{}
	signaturesSubmitted chan struct{}
	forfeitsSubmitted   chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		eventsCh:            make(chan client.RoundEventChannel, 16),
		nonces:              make(map[string]tree.TreeNonces),
		signatures:          make(map[string]tree.TreePartialSigs),
		outputsRegistered:   make(chan struct{}, 1),
		noncesSubmitted:     make(chan struct{}, 4),
		signaturesSubmitted: make(chan struct{}, 4),
		forfeitsSubmitted:   make(chan struct{}, 1),
	}
}

func (m *mockTransport) GetInfo(_ context.Context) (*client.Info, error) {
	return nil, nil
}

func (m *mockTransport) RegisterInputsForNextRound(
	_ context.Context, inputs []client.Input, notes []string,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registeredInputs = inputs
	m.registeredNotes = notes
	return "request-1", nil
}

func (m *mockTransport) RegisterOutputsForNextRound(
	_ context.Context, _ string, outputs []client.Output,
	cosignersPublicKeys []string, _ bool,
) error {
	m.mu.Lock()
	m.registeredOutputs = outputs
	m.cosignerKeys = cosignersPublicKeys
	m.mu.Unlock()
	m.outputsRegistered <- struct{}{}
	return nil
}

func (m *mockTransport) SubmitTreeNonces(
	_ context.Context, _, cosignerPubkey string, nonces tree.TreeNonces,
) error {
	m.mu.Lock()
	m.nonces[cosignerPubkey] = nonces
	m.mu.Unlock()
	m.noncesSubmitted <- struct{}{}
	return nil
}

func (m *mockTransport) SubmitTreeSignatures(
	_ context.Context, _, cosignerPubkey string, signatures tree.TreePartialSigs,
) error {
	m.mu.Lock()
	m.signatures[cosignerPubkey] = signatures
	m.mu.Unlock()
	m.signaturesSubmitted <- struct{}{}
	return nil
}

func (m *mockTransport) SubmitSignedForfeitTxs(
	_ context.Context, signedForfeitTxs []string, signedRoundTx string,
) error {
	m.mu.Lock()
	m.forfeitTxs = signedForfeitTxs
	m.signedRoundTx = signedRoundTx
	m.mu.Unlock()
	m.forfeitsSubmitted <- struct{}{}
	return nil
}

func (m *mockTransport) GetEventStream(
	_ context.Context,
) (<-chan client.RoundEventChannel, func(), error) {
	return m.eventsCh, func() {}, nil
}

func (m *mockTransport) Ping(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCount++
	return nil
}

func (m *mockTransport) SubmitRedeemTx(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (m *mockTransport) ListVtxos(
	_ context.Context, _ string,
) ([]client.Vtxo, []client.Vtxo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spendableVtxos, nil, nil
}

func (m *mockTransport) Close() {}

func (m *mockTransport) pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCount
}

var _ client.TransportClient = (*mockTransport)(nil)

type fakeExplorer struct {
	utxos map[string][]explorer.Utxo
}

func (e *fakeExplorer) GetTxHex(string) (string, error)  { return "", nil }
func (e *fakeExplorer) Broadcast(string) (string, error) { return "", nil }
func (e *fakeExplorer) BaseUrl() string                  { return "" }

func (e *fakeExplorer) GetTxBlockTime(string) (bool, int64, error) {
	return true, 0, nil
}
func (e *fakeExplorer) GetUtxos(addr string) ([]explorer.Utxo, error) {
	return e.utxos[addr], nil
}

type settlementFixture struct {
	arkClient     *arkClient
	transport     *mockTransport
	explorer      *fakeExplorer
	serverPrivKey *secp256k1.PrivateKey
	forfeitScript []byte
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()

	serverPrivKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	forfeitAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(serverPrivKey.PubKey().SerializeCompressed()),
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	forfeitScript, err := txscript.PayToAddrScript(forfeitAddr)
	require.NoError(t, err)

	cfg := types.Config{
		ServerUrl:    "http://localhost:7070",
		ServerPubKey: serverPrivKey.PubKey(),
		WalletType:   "singlekey",
		ClientType:   client.RestClient,
		Network:      common.BitcoinRegTest,
		VtxoTreeExpiry: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 144,
		},
		UnilateralExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 512,
		},
		BoardingExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 1000,
		},
		Dust:           330,
		ForfeitAddress: forfeitAddr.EncodeAddress(),
	}

	configStore := inmemorystore.NewConfigStore()
	require.NoError(t, configStore.AddData(context.Background(), cfg))

	walletStore, err := walletinmemorystore.NewWalletStore()
	require.NoError(t, err)

	walletSvc, err := singlekeywallet.NewBitcoinWallet(configStore, walletStore)
	require.NoError(t, err)

	_, err = walletSvc.Create(context.Background(), "password", "")
	require.NoError(t, err)

	walletSvc, err = singlekeywallet.NewBitcoinWallet(configStore, walletStore)
	require.NoError(t, err)
	_, err = walletSvc.Unlock(context.Background(), "password")
	require.NoError(t, err)

	transport := newMockTransport()
	fakeExplorerSvc := &fakeExplorer{utxos: make(map[string][]explorer.Utxo)}

	ark := &arkClient{
		config:   &cfg,
		wallet:   walletSvc,
		explorer: fakeExplorerSvc,
		client:   transport,
	}

	return &settlementFixture{
		arkClient:     ark,
		transport:     transport,
		explorer:      fakeExplorerSvc,
		serverPrivKey: serverPrivKey,
		forfeitScript: forfeitScript,
	}
}

func (f *settlementFixture) addVtxo(t *testing.T, amount uint64) client.Vtxo {
	t.Helper()

	offchainAddrs, _, _, err := f.arkClient.wallet.GetAddresses(context.Background())
	require.NoError(t, err)

	decoded, err := common.DecodeAddress(offchainAddrs[0].Address)
	require.NoError(t, err)

	vtxo := client.Vtxo{
		Outpoint: client.Outpoint{
			Txid: strings.Repeat("bb", 32),
			VOut: 0,
		},
		PubKey: hex.EncodeToString(decoded.VtxoTapKey.SerializeCompressed()[1:]),
		Amount: amount,
	}

	f.transport.mu.Lock()
	f.transport.spendableVtxos = append(f.transport.spendableVtxos, vtxo)
	f.transport.mu.Unlock()

	return vtxo
}

func (f *settlementFixture) addBoardingUtxo(t *testing.T, amount uint64) client.Outpoint {
	t.Helper()

	_, boardingAddrs, _, err := f.arkClient.wallet.GetAddresses(context.Background())
	require.NoError(t, err)

	outpoint := client.Outpoint{Txid: strings.Repeat("cc", 32), VOut: 0}

	utxo := explorer.Utxo{
		Txid:   outpoint.Txid,
		Vout:   outpoint.VOut,
		Amount: amount,
	}
	utxo.Status.Confirmed = true
	utxo.Status.Blocktime = time.Now().Add(-24 * time.Hour).Unix()

	f.explorer.utxos[boardingAddrs[0].Address] = []explorer.Utxo{utxo}

	return outpoint
}

// runServer plays the coordinator side of a settlement: it builds a
// single-node vtxo tree paying the registered outputs, runs the musig2
// ceremony against the client's submissions and finalizes the round.
func (f *settlementFixture) runServer(
	t *testing.T, boardingOutpoints []client.Outpoint, vtxos []client.Vtxo,
	failAfterSigningStart string,
) {
	t.Helper()

	transport := f.transport

	// wait for the client registration
	select {
	case <-transport.outputsRegistered:
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for output registration")
		return
	}

	transport.mu.Lock()
	cosignerKeys := transport.cosignerKeys
	outputs := transport.registeredOutputs
	transport.mu.Unlock()

	cosigners := make([]*btcec.PublicKey, 0, len(cosignerKeys)+1)
	for _, cosignerKey := range cosignerKeys {
		buf, err := hex.DecodeString(cosignerKey)
		require.NoError(t, err)
		pubkey, err := secp256k1.ParsePubKey(buf)
		require.NoError(t, err)
		cosigners = append(cosigners, pubkey)
	}
	cosigners = append(cosigners, f.serverPrivKey.PubKey())

	sweepTapTreeRoot, err := tree.SweepTapTreeRoot(
		f.serverPrivKey.PubKey(), common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: 144,
		},
	)
	require.NoError(t, err)

	aggregatedKey, err := tree.AggregateKeys(cosigners, sweepTapTreeRoot)
	require.NoError(t, err)

	sharedScript, err := common.P2TRScript(aggregatedKey.FinalKey)
	require.NoError(t, err)

	sharedAmount := int64(0)
	leafOuts := make([]*wire.TxOut, 0, len(outputs))
	for _, output := range outputs {
		addr, err := common.DecodeAddress(output.Address)
		require.NoError(t, err)
		script, err := addr.PkScript()
		require.NoError(t, err)
		leafOuts = append(leafOuts, &wire.TxOut{
			Value: int64(output.Amount), PkScript: script,
		})
		sharedAmount += int64(output.Amount)
	}

	// round transaction: the boarding inputs plus a funding input
	fundingTxid, err := chainhash.NewHashFromStr(strings.Repeat("dd", 32))
	require.NoError(t, err)

	roundIns := []*wire.OutPoint{{Hash: *fundingTxid, Index: 0}}
	roundSequences := []uint32{wire.MaxTxInSequenceNum}
	for _, outpoint := range boardingOutpoints {
		hash, err := chainhash.NewHashFromStr(outpoint.Txid)
		require.NoError(t, err)
		roundIns = append(roundIns, &wire.OutPoint{Hash: *hash, Index: outpoint.VOut})
		roundSequences = append(roundSequences, wire.MaxTxInSequenceNum)
	}

	roundPtx, err := psbt.New(
		roundIns,
		[]*wire.TxOut{
			{Value: sharedAmount, PkScript: sharedScript},
			{Value: 450, PkScript: sharedScript},
		},
		2, 0, roundSequences,
	)
	require.NoError(t, err)

	// annotate witness utxos so the client can sign its boarding inputs
	_, boardingAddrs, _, err := f.arkClient.wallet.GetAddresses(context.Background())
	require.NoError(t, err)
	boardingScripts := make(map[string][]byte)
	for _, addr := range boardingAddrs {
		boardingVtxoScript, err := tree.ParseVtxoScript(addr.Tapscripts)
		require.NoError(t, err)
		tapKey, _, err := boardingVtxoScript.TapTree()
		require.NoError(t, err)
		script, err := common.P2TRScript(tapKey)
		require.NoError(t, err)
		boardingScripts[addr.Address] = script
	}

	for i := range roundPtx.UnsignedTx.TxIn {
		prevout := &wire.TxOut{Value: 100_000, PkScript: sharedScript}
		if i > 0 {
			for _, script := range boardingScripts {
				prevout = &wire.TxOut{Value: 100_000, PkScript: script}
			}
		}
		roundPtx.Inputs[i].WitnessUtxo = prevout
	}

	roundTx, err := roundPtx.B64Encode()
	require.NoError(t, err)
	roundHash := roundPtx.UnsignedTx.TxHash()

	// single-node vtxo tree: the root is the leaf
	rootPtx, err := psbt.New(
		[]*wire.OutPoint{{Hash: roundHash, Index: 0}},
		leafOuts, 2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)

	for _, cosigner := range cosigners {
		require.NoError(t, tree.AddCosignerKey(0, rootPtx, cosigner))
	}

	rootTx, err := rootPtx.B64Encode()
	require.NoError(t, err)

	vtxoTree := tree.TxTree{
		{
			{
				Txid:       rootPtx.UnsignedTx.TxID(),
				Tx:         rootTx,
				ParentTxid: roundPtx.UnsignedTx.TxID(),
				Leaf:       true,
			},
		},
	}

	serverCosignerKeys := make([]string, 0, len(cosignerKeys))
	serverCosignerKeys = append(serverCosignerKeys, cosignerKeys...)
	serverCosignerKeys = append(
		serverCosignerKeys,
		hex.EncodeToString(f.serverPrivKey.PubKey().SerializeCompressed()),
	)

	transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundSigningStartedEvent{
			ID:               "round-1",
			UnsignedTree:     vtxoTree,
			CosignersPubkeys: serverCosignerKeys,
			UnsignedRoundTx:  roundTx,
		},
	}

	if failAfterSigningStart != "" {
		// wait for nonces then abort the round
		select {
		case <-transport.noncesSubmitted:
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for nonces")
			return
		}

		transport.eventsCh <- client.RoundEventChannel{
			Event: client.RoundFailedEvent{
				ID:     "round-1",
				Reason: failAfterSigningStart,
			},
		}
		return
	}

	// musig2 ceremony
	coordinator, err := tree.NewTreeCoordinatorSession(
		sharedAmount, vtxoTree, sweepTapTreeRoot,
	)
	require.NoError(t, err)

	serverSession := tree.NewTreeSignerSession(f.serverPrivKey)
	require.NoError(t, serverSession.Init(sweepTapTreeRoot, sharedAmount, vtxoTree))

	serverNonces, err := serverSession.GetNonces()
	require.NoError(t, err)
	coordinator.AddNonce(f.serverPrivKey.PubKey(), serverNonces)

	for range cosignerKeys {
		select {
		case <-transport.noncesSubmitted:
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for nonces")
			return
		}
	}

	transport.mu.Lock()
	for cosignerKey, nonces := range transport.nonces {
		buf, err := hex.DecodeString(cosignerKey)
		require.NoError(t, err)
		pubkey, err := secp256k1.ParsePubKey(buf)
		require.NoError(t, err)
		coordinator.AddNonce(pubkey, nonces)
	}
	transport.mu.Unlock()

	aggregatedNonces, err := coordinator.AggregateNonces()
	require.NoError(t, err)

	transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundSigningNoncesGeneratedEvent{
			ID:     "round-1",
			Nonces: aggregatedNonces,
		},
	}

	require.NoError(t, serverSession.SetAggregatedNonces(aggregatedNonces))
	serverSigs, err := serverSession.Sign()
	require.NoError(t, err)
	coordinator.AddSignatures(f.serverPrivKey.PubKey(), serverSigs)

	for range cosignerKeys {
		select {
		case <-transport.signaturesSubmitted:
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for signatures")
			return
		}
	}

	transport.mu.Lock()
	for cosignerKey, signatures := range transport.signatures {
		buf, err := hex.DecodeString(cosignerKey)
		require.NoError(t, err)
		pubkey, err := secp256k1.ParsePubKey(buf)
		require.NoError(t, err)
		coordinator.AddSignatures(pubkey, signatures)
	}
	transport.mu.Unlock()

	signedTree, err := coordinator.SignTree()
	require.NoError(t, err)

	require.NoError(t, tree.ValidateTreeSigs(
		sweepTapTreeRoot, sharedAmount, signedTree,
	))

	// connectors tree: one leaf per forfeited vtxo, paying the forfeit
	// address
	connectorsIndex := make(map[string]client.Outpoint)
	connectorsTree := tree.TxTree{}
	if len(vtxos) > 0 {
		connectorOuts := make([]*wire.TxOut, 0, len(vtxos))
		for range vtxos {
			connectorOuts = append(connectorOuts, &wire.TxOut{
				Value: 450 / int64(len(vtxos)), PkScript: f.forfeitScript,
			})
		}

		connectorPtx, err := psbt.New(
			[]*wire.OutPoint{{Hash: roundHash, Index: 1}},
			connectorOuts, 2, 0, []uint32{wire.MaxTxInSequenceNum},
		)
		require.NoError(t, err)

		connectorTx, err := connectorPtx.B64Encode()
		require.NoError(t, err)

		connectorsTree = tree.TxTree{
			{
				{
					Txid:       connectorPtx.UnsignedTx.TxID(),
					Tx:         connectorTx,
					ParentTxid: roundPtx.UnsignedTx.TxID(),
					Leaf:       true,
				},
			},
		}

		for i, vtxo := range vtxos {
			connectorsIndex[vtxo.Outpoint.String()] = client.Outpoint{
				Txid: connectorPtx.UnsignedTx.TxID(),
				VOut: uint32(i),
			}
		}
	}

	transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundFinalizationEvent{
			ID:              "round-1",
			Tx:              roundTx,
			Tree:            signedTree,
			Connectors:      connectorsTree,
			ConnectorsIndex: connectorsIndex,
			MinRelayFeeRate: 1000,
		},
	}

	select {
	case <-transport.forfeitsSubmitted:
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for forfeit txs")
		return
	}

	transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundFinalizedEvent{
			ID:   "round-1",
			Txid: roundTxid,
		},
	}
}

func TestSettleSingleVtxo(t *testing.T) {
	fixture := newSettlementFixture(t)
	vtxo := fixture.addVtxo(t, 1000)

	go fixture.runServer(t, nil, []client.Vtxo{vtxo}, "")

	txid, err := fixture.arkClient.Settle(context.Background())
	require.NoError(t, err)
	require.Equal(t, roundTxid, txid)

	fixture.transport.mu.Lock()
	defer fixture.transport.mu.Unlock()

	// exactly one forfeit, no settlement tx
	require.Len(t, fixture.transport.forfeitTxs, 1)
	require.Empty(t, fixture.transport.signedRoundTx)

	// the forfeit carries the signed vtxo input and the untouched
	// connector input
	forfeitPtx, err := psbt.NewFromRawBytes(
		strings.NewReader(fixture.transport.forfeitTxs[0]), true,
	)
	require.NoError(t, err)
	require.Len(t, forfeitPtx.Inputs, 2)
	require.Empty(t, forfeitPtx.Inputs[0].TaprootScriptSpendSig)
	require.NotEmpty(t, forfeitPtx.Inputs[1].TaprootScriptSpendSig)
	require.True(t, tree.IsAnchor(forfeitPtx.UnsignedTx.TxOut[1]))
}

func TestSettleBoardingAndVtxo(t *testing.T) {
	fixture := newSettlementFixture(t)
	vtxo := fixture.addVtxo(t, 5000)
	boardingOutpoint := fixture.addBoardingUtxo(t, 100_000)

	go fixture.runServer(
		t, []client.Outpoint{boardingOutpoint}, []client.Vtxo{vtxo}, "",
	)

	txid, err := fixture.arkClient.Settle(context.Background())
	require.NoError(t, err)
	require.Equal(t, roundTxid, txid)

	fixture.transport.mu.Lock()
	defer fixture.transport.mu.Unlock()

	require.Len(t, fixture.transport.forfeitTxs, 1)
	require.NotEmpty(t, fixture.transport.signedRoundTx)

	// the boarding input of the round tx must carry the wallet signature
	roundPtx, err := psbt.NewFromRawBytes(
		strings.NewReader(fixture.transport.signedRoundTx), true,
	)
	require.NoError(t, err)

	signedInputs := 0
	for _, input := range roundPtx.Inputs {
		if len(input.TaprootScriptSpendSig) > 0 {
			signedInputs++
		}
	}
	require.Equal(t, 1, signedInputs)
}

func TestSettleFailedMidRound(t *testing.T) {
	fixture := newSettlementFixture(t)
	vtxo := fixture.addVtxo(t, 1000)

	go fixture.runServer(t, nil, []client.Vtxo{vtxo}, "timeout")

	_, err := fixture.arkClient.Settle(context.Background())
	require.Error(t, err)

	var settlementErr *SettlementFailedError
	require.ErrorAs(t, err, &settlementErr)
	require.Equal(t, "timeout", settlementErr.Reason)

	// the ping loop must be stopped
	time.Sleep(100 * time.Millisecond)
	before := fixture.transport.pings()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, before, fixture.transport.pings())
}

func TestSettleDropsOutOfOrderEvents(t *testing.T) {
	fixture := newSettlementFixture(t)
	vtxo := fixture.addVtxo(t, 1000)

	// premature events must be dropped without advancing the machine
	fixture.transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundFinalizedEvent{ID: "round-0", Txid: strings.Repeat("ff", 32)},
	}
	fixture.transport.eventsCh <- client.RoundEventChannel{
		Event: client.RoundSigningNoncesGeneratedEvent{ID: "round-0"},
	}

	go fixture.runServer(t, nil, []client.Vtxo{vtxo}, "")

	txid, err := fixture.arkClient.Settle(context.Background())
	require.NoError(t, err)
	require.Equal(t, roundTxid, txid)
}

func TestSettleCancellation(t *testing.T) {
	fixture := newSettlementFixture(t)
	fixture.addVtxo(t, 1000)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := fixture.arkClient.Settle(ctx)
		errCh <- err
	}()

	// wait for registration, then cancel mid-stream
	select {
	case <-fixture.transport.outputsRegistered:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for registration")
	}

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancellation did not interrupt the settlement within 100ms")
	}

	// the ping loop must be released as well
	time.Sleep(100 * time.Millisecond)
	before := fixture.transport.pings()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, before, fixture.transport.pings())
}
