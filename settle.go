package arksdk

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/internal/utils"
	"github.com/ark-network/ark-client-go/types"
	"github.com/ark-network/ark-client-go/wallet"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	log "github.com/sirupsen/logrus"
)

// settlement steps, driven by the server event order
const (
	start = iota
	roundSigningStarted
	roundSigningNoncesGenerated
	roundFinalization
)

// Settle collects every spendable vtxo and claimable boarding utxo and
// settles them back to the wallet's offchain address in the next round.
func (a *arkClient) Settle(ctx context.Context, opts ...Option) (string, error) {
	return a.sendOffchain(ctx, nil, nil, opts...)
}

// SendOffChain spends vtxos (and boarding utxos if needed) towards the
// given receivers through the next round.
func (a *arkClient) SendOffChain(
	ctx context.Context, receivers []Receiver, opts ...Option,
) (string, error) {
	if len(receivers) == 0 {
		return "", fmt.Errorf("missing receivers")
	}
	return a.sendOffchain(ctx, receivers, nil, opts...)
}

// RedeemNotes registers the given arkade notes in the next round, settling
// their total value to the wallet's offchain address. Notes are forwarded
// opaque and require no forfeit.
func (a *arkClient) RedeemNotes(
	ctx context.Context, notes []string, amount uint64, opts ...Option,
) (string, error) {
	if err := a.safeCheck(); err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "", fmt.Errorf("missing notes")
	}
	if amount == 0 {
		return "", ErrAmountNonPositive
	}

	offchainAddrs, _, _, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return "", err
	}
	if len(offchainAddrs) <= 0 {
		return "", fmt.Errorf("no offchain addresses found")
	}

	return a.sendOffchain(ctx, []Receiver{
		{To: offchainAddrs[0].Address, Amount: amount},
	}, notes, opts...)
}

func (a *arkClient) sendOffchain(
	ctx context.Context, receivers []Receiver, notes []string, settleOpts ...Option,
) (string, error) {
	if err := a.safeCheck(); err != nil {
		return "", err
	}

	options := &SettleOptions{}
	for _, opt := range settleOpts {
		if err := opt(options); err != nil {
			return "", err
		}
	}

	if a.wallet.IsLocked() {
		return "", ErrWalletLocked
	}

	expectedServerPubkey := schnorr.SerializePubKey(a.config.ServerPubKey)
	outputs := make([]client.Output, 0)
	sumOfReceivers := uint64(0)

	// validate receivers and create outputs
	for _, receiver := range receivers {
		if receiver.Amount == 0 {
			return "", ErrAmountNonPositive
		}

		rcvAddr, err := common.DecodeAddress(receiver.To)
		if err == nil {
			rcvServerPubkey := schnorr.SerializePubKey(rcvAddr.Server)
			if !bytes.Equal(expectedServerPubkey, rcvServerPubkey) {
				return "", fmt.Errorf(
					"invalid receiver address '%s': expected server %s, got %s",
					receiver.To,
					hex.EncodeToString(expectedServerPubkey),
					hex.EncodeToString(rcvServerPubkey),
				)
			}
		}

		if receiver.Amount < a.config.Dust {
			return "", fmt.Errorf(
				"%w: amount %d, dust %d", ErrAmountBelowDust, receiver.Amount, a.config.Dust,
			)
		}

		outputs = append(outputs, client.Output{
			Address: receiver.To,
			Amount:  receiver.Amount,
		})
		sumOfReceivers += receiver.Amount
	}

	offchainAddrs, _, _, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return "", err
	}
	if len(offchainAddrs) <= 0 {
		return "", fmt.Errorf("no offchain addresses found")
	}

	var selectedBoardingCoins []types.Utxo
	var selectedCoins []client.TapscriptsVtxo
	var changeAmount uint64

	// notes carry their own value and need no coin selection
	if len(notes) == 0 {
		vtxos, err := a.getVtxos(ctx, options)
		if err != nil {
			return "", err
		}

		boardingUtxos, err := a.getClaimableBoardingUtxos(ctx)
		if err != nil {
			return "", err
		}

		// if no receivers, self send all selected coins
		if len(outputs) <= 0 {
			selectedBoardingCoins = boardingUtxos
			selectedCoins = vtxos

			amount := uint64(0)
			for _, utxo := range boardingUtxos {
				amount += utxo.Amount
			}
			for _, vtxo := range vtxos {
				amount += vtxo.Amount
			}

			if amount == 0 {
				return "", ErrInsufficientFunds
			}

			outputs = append(outputs, client.Output{
				Address: offchainAddrs[0].Address,
				Amount:  amount,
			})

			changeAmount = 0
		} else {
			selectedBoardingCoins, selectedCoins, changeAmount, err = utils.CoinSelect(
				boardingUtxos, vtxos, sumOfReceivers, a.config.Dust,
				options.WithExpirySortedCoins,
			)
			if err != nil {
				return "", fmt.Errorf("%w: %s", ErrInsufficientFunds, err)
			}
		}

		if changeAmount > 0 {
			offchainAddr, _, err := a.wallet.NewAddress(ctx, true)
			if err != nil {
				return "", err
			}
			outputs = append(outputs, client.Output{
				Address: offchainAddr.Address,
				Amount:  changeAmount,
			})
		}
	}

	inputs := make([]client.Input, 0, len(selectedCoins)+len(selectedBoardingCoins))
	for _, coin := range selectedCoins {
		inputs = append(inputs, client.Input{
			Outpoint: client.Outpoint{
				Txid: coin.Txid,
				VOut: coin.VOut,
			},
			Tapscripts: coin.Tapscripts,
		})
	}
	for _, boardingUtxo := range selectedBoardingCoins {
		inputs = append(inputs, client.Input{
			Outpoint: client.Outpoint{
				Txid: boardingUtxo.Txid,
				VOut: boardingUtxo.VOut,
			},
			Tapscripts: boardingUtxo.Tapscripts,
		})
	}

	signerSessions, signerPubKeys, err := a.handleOptions(ctx, options, inputs, notes)
	if err != nil {
		return "", err
	}

	requestID, err := a.client.RegisterInputsForNextRound(ctx, inputs, notes)
	if err != nil {
		return "", err
	}

	if err := a.client.RegisterOutputsForNextRound(
		ctx, requestID, outputs, signerPubKeys, options.SignAll,
	); err != nil {
		return "", err
	}

	log.Infof("registered inputs and outputs with request id: %s", requestID)

	return a.handleRoundStream(
		ctx, requestID, selectedCoins, selectedBoardingCoins, outputs,
		signerSessions, options,
	)
}

// handleRoundStream drives one settlement: it consumes the server's event
// stream and reacts to each state-advancing event, in order. Out-of-order
// events are dropped, duplicates are ignored. On any exit path the ping
// loop is stopped and the signing session secrets are zeroed.
func (a *arkClient) handleRoundStream(
	ctx context.Context,
	requestID string,
	vtxosToSign []client.TapscriptsVtxo,
	boardingUtxos []types.Utxo,
	receivers []client.Output,
	signerSessions []tree.SignerSession,
	options *SettleOptions,
) (string, error) {
	eventsCh, closeStream, err := a.client.GetEventStream(ctx)
	if err != nil {
		return "", err
	}

	pingStop := a.ping(ctx, requestID)

	defer func() {
		pingStop()
		closeStream()
		for _, session := range signerSessions {
			session.Reset()
		}
	}()

	step := start

	hasOffchainOutput := false
	for _, receiver := range receivers {
		if _, err := common.DecodeAddress(receiver.Address); err == nil {
			hasOffchainOutput = true
			break
		}
	}

	if !hasOffchainOutput {
		// none of the outputs is offchain, skip the vtxo tree signing steps
		step = roundSigningNoncesGenerated
	}

	var roundID string
	var sweepTapTreeRoot []byte

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case notify, ok := <-eventsCh:
			if !ok {
				return "", fmt.Errorf("event stream closed")
			}
			if notify.Err != nil {
				return "", notify.Err
			}

			if options.EventsCh != nil {
				go func(event client.RoundEvent) {
					options.EventsCh <- event
				}(notify.Event)
			}

			switch event := notify.Event.(type) {
			case client.BatchStartedEvent:
				continue

			case client.RoundFinalizedEvent:
				if step != roundFinalization {
					log.Warnf("dropping out-of-order event %T", event)
					continue
				}
				log.Infof("round completed %s", event.Txid)
				return event.Txid, nil

			case client.RoundFailedEvent:
				if roundID == "" || event.ID == roundID {
					return "", &SettlementFailedError{Reason: event.Reason}
				}
				continue

			case client.RoundSigningStartedEvent:
				if step != start {
					log.Warnf("dropping out-of-order event %T", event)
					continue
				}
				pingStop()
				log.Info("a round signing started")
				skipped, root, err := a.handleRoundSigningStarted(
					ctx, signerSessions, event,
				)
				if err != nil {
					return "", err
				}
				if !skipped {
					roundID = event.ID
					sweepTapTreeRoot = root
					step++
				}
				continue

			case client.RoundSigningNoncesGeneratedEvent:
				if step != roundSigningStarted {
					log.Warnf("dropping out-of-order event %T", event)
					continue
				}
				pingStop()
				log.Info("round combined nonces generated")
				if err := a.handleRoundSigningNoncesGenerated(
					ctx, event, signerSessions,
				); err != nil {
					return "", err
				}
				step++
				continue

			case client.RoundFinalizationEvent:
				if step != roundSigningNoncesGenerated {
					log.Warnf("dropping out-of-order event %T", event)
					continue
				}
				pingStop()
				log.Info("a round finalization started")

				signedForfeitTxs, signedRoundTx, err := a.handleRoundFinalization(
					ctx, event, vtxosToSign, boardingUtxos, receivers,
					sweepTapTreeRoot, options,
				)
				if err != nil {
					return "", err
				}

				if len(signedForfeitTxs) <= 0 && len(vtxosToSign) > 0 {
					log.Info("no forfeit txs to sign, waiting for the next round")
					continue
				}

				log.Info("submitting forfeit transactions...")
				if err := a.client.SubmitSignedForfeitTxs(
					ctx, signedForfeitTxs, signedRoundTx,
				); err != nil {
					return "", err
				}

				log.Info("waiting for round finalization...")
				step++
				continue
			}
		}
	}
}

// handleRoundSigningStarted inits the signer sessions against the unsigned
// tree and submits the public nonces. It returns true when none of the
// sessions is part of the cosigner set, meaning the round is not ours.
func (a *arkClient) handleRoundSigningStarted(
	ctx context.Context, signerSessions []tree.SignerSession,
	event client.RoundSigningStartedEvent,
) (bool, []byte, error) {
	foundPubkeys := make([]string, 0, len(signerSessions))
	for _, session := range signerSessions {
		myPubkey := session.GetPublicKey()
		for _, cosigner := range event.CosignersPubkeys {
			if cosigner == myPubkey {
				foundPubkeys = append(foundPubkeys, myPubkey)
				break
			}
		}
	}

	if len(foundPubkeys) <= 0 {
		return true, nil, nil
	}

	if len(foundPubkeys) != len(signerSessions) {
		return false, nil, fmt.Errorf("not all signers found in cosigner list")
	}

	sweepTapTreeRoot, err := tree.SweepTapTreeRoot(
		a.config.ServerPubKey, a.config.VtxoTreeExpiry,
	)
	if err != nil {
		return false, nil, err
	}

	roundTx, err := psbt.NewFromRawBytes(strings.NewReader(event.UnsignedRoundTx), true)
	if err != nil {
		return false, nil, err
	}

	if len(roundTx.UnsignedTx.TxOut) <= 0 {
		return false, nil, fmt.Errorf("missing shared output in round transaction")
	}

	sharedOutputValue := roundTx.UnsignedTx.TxOut[0].Value

	for _, session := range signerSessions {
		if err := session.Init(
			sweepTapTreeRoot, sharedOutputValue, event.UnsignedTree,
		); err != nil {
			return false, nil, err
		}

		nonces, err := session.GetNonces()
		if err != nil {
			return false, nil, err
		}

		if err := a.client.SubmitTreeNonces(
			ctx, event.ID, session.GetPublicKey(), nonces,
		); err != nil {
			return false, nil, err
		}
	}

	return false, sweepTapTreeRoot, nil
}

func (a *arkClient) handleRoundSigningNoncesGenerated(
	ctx context.Context,
	event client.RoundSigningNoncesGeneratedEvent,
	signerSessions []tree.SignerSession,
) error {
	if len(signerSessions) <= 0 {
		return fmt.Errorf("tree signer session not set")
	}

	for _, session := range signerSessions {
		if err := session.SetAggregatedNonces(event.Nonces); err != nil {
			return err
		}

		sigs, err := session.Sign()
		if err != nil {
			return err
		}

		if err := a.client.SubmitTreeSignatures(
			ctx, event.ID, session.GetPublicKey(), sigs,
		); err != nil {
			return err
		}
	}

	return nil
}

// handleRoundFinalization validates the vtxo and connectors trees, builds
// and signs the forfeit transactions for the vtxo inputs and cosigns the
// round transaction for the boarding inputs.
func (a *arkClient) handleRoundFinalization(
	ctx context.Context,
	event client.RoundFinalizationEvent,
	vtxos []client.TapscriptsVtxo,
	boardingUtxos []types.Utxo,
	receivers []client.Output,
	sweepTapTreeRoot []byte,
	options *SettleOptions,
) ([]string, string, error) {
	if err := a.validateFinalization(
		event, receivers, vtxos, sweepTapTreeRoot,
	); err != nil {
		return nil, "", fmt.Errorf("failed to verify vtxo tree: %s", err)
	}

	identity := a.signingIdentity(options)

	var forfeits []string

	if len(vtxos) > 0 {
		signedForfeits, err := a.createAndSignForfeits(
			ctx, identity, vtxos, event.Connectors, event.ConnectorsIndex,
			event.MinRelayFeeRate,
		)
		if err != nil {
			return nil, "", err
		}

		forfeits = signedForfeits
	}

	// without boarding inputs there is no need to sign the round tx
	if len(boardingUtxos) <= 0 {
		return forfeits, "", nil
	}

	roundPtx, err := psbt.NewFromRawBytes(strings.NewReader(event.Tx), true)
	if err != nil {
		return nil, "", err
	}

	for _, boardingUtxo := range boardingUtxos {
		boardingVtxoScript, err := tree.ParseVtxoScript(boardingUtxo.Tapscripts)
		if err != nil {
			return nil, "", err
		}

		forfeitClosures := boardingVtxoScript.ForfeitClosures()
		if len(forfeitClosures) <= 0 {
			return nil, "", fmt.Errorf("no forfeit closures found")
		}

		forfeitClosure := forfeitClosures[0]

		forfeitScript, err := forfeitClosure.Script()
		if err != nil {
			return nil, "", err
		}

		_, taprootTree, err := boardingVtxoScript.TapTree()
		if err != nil {
			return nil, "", err
		}

		forfeitLeaf := txscript.NewBaseTapLeaf(forfeitScript)
		forfeitProof, err := taprootTree.GetTaprootMerkleProof(forfeitLeaf.TapHash())
		if err != nil {
			return nil, "", fmt.Errorf(
				"failed to get taproot merkle proof for boarding utxo: %s", err,
			)
		}

		tapscript := &psbt.TaprootTapLeafScript{
			ControlBlock: forfeitProof.ControlBlock,
			Script:       forfeitProof.Script,
			LeafVersion:  txscript.BaseLeafVersion,
		}

		for i := range roundPtx.Inputs {
			prevout := roundPtx.UnsignedTx.TxIn[i].PreviousOutPoint

			if boardingUtxo.Txid == prevout.Hash.String() &&
				boardingUtxo.VOut == prevout.Index {
				roundPtx.Inputs[i].TaprootLeafScript = []*psbt.TaprootTapLeafScript{tapscript}
				break
			}
		}
	}

	b64, err := roundPtx.B64Encode()
	if err != nil {
		return nil, "", err
	}

	signedRoundTx, err := identity.SignTransaction(ctx, a.explorer, b64)
	if err != nil {
		return nil, "", err
	}

	return forfeits, signedRoundTx, nil
}

func (a *arkClient) validateFinalization(
	event client.RoundFinalizationEvent,
	receivers []client.Output,
	vtxosInput []client.TapscriptsVtxo,
	sweepTapTreeRoot []byte,
) error {
	ptx, err := psbt.NewFromRawBytes(strings.NewReader(event.Tx), true)
	if err != nil {
		return err
	}

	netParams := utils.ToBitcoinNetwork(a.config.Network)

	registeredOutputs := make([]*wire.TxOut, 0, len(receivers))
	for _, receiver := range receivers {
		isOnChain, onchainScript, err := utils.ParseBitcoinAddress(
			receiver.Address, netParams,
		)
		if err != nil {
			return fmt.Errorf("invalid receiver address %s: %s", receiver.Address, err)
		}

		if isOnChain {
			if err := validateOnChainReceiver(ptx, receiver, onchainScript); err != nil {
				return err
			}
			continue
		}

		rcvAddr, err := common.DecodeAddress(receiver.Address)
		if err != nil {
			return fmt.Errorf("invalid receiver address %s: %s", receiver.Address, err)
		}

		script, err := rcvAddr.PkScript()
		if err != nil {
			return err
		}

		registeredOutputs = append(registeredOutputs, &wire.TxOut{
			Value:    int64(receiver.Amount),
			PkScript: script,
		})
	}

	if len(registeredOutputs) > 0 {
		if err := tree.ValidateVtxoTree(
			event.Tx, event.Tree, sweepTapTreeRoot, registeredOutputs,
		); err != nil {
			return err
		}
	}

	if len(vtxosInput) > 0 {
		forfeitScript, err := a.forfeitPkScript()
		if err != nil {
			return err
		}

		if err := tree.ValidateConnectorsTree(
			event.Tx, event.Connectors, forfeitScript,
		); err != nil {
			return err
		}

		if len(event.ConnectorsIndex) == 0 {
			return fmt.Errorf("empty connectors index")
		}

		for _, vtxo := range vtxosInput {
			if _, ok := event.ConnectorsIndex[vtxo.Outpoint.String()]; !ok {
				return fmt.Errorf("missing connector index for vtxo %s", vtxo.Outpoint.String())
			}
		}
	}

	return nil
}

func validateOnChainReceiver(
	ptx *psbt.Packet, receiver client.Output, onchainScript []byte,
) error {
	found := false
	for _, output := range ptx.UnsignedTx.TxOut {
		if bytes.Equal(output.PkScript, onchainScript) {
			if output.Value != int64(receiver.Amount) {
				return fmt.Errorf(
					"invalid collaborative exit output amount: got %d, want %d",
					output.Value, receiver.Amount,
				)
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("collaborative exit output not found: %s", receiver.Address)
	}
	return nil
}

// createAndSignForfeits builds one forfeit transaction per vtxo input: the
// connector is located through the connectors index, the fee is estimated
// from the forfeit closure witness size and the server script class, then
// the vtxo input is signed under the forfeit leaf.
func (a *arkClient) createAndSignForfeits(
	ctx context.Context,
	identity wallet.WalletService,
	vtxosToSign []client.TapscriptsVtxo,
	connectorsTree tree.TxTree,
	connectorsIndex map[string]client.Outpoint,
	feeRate chainfee.SatPerKVByte,
) ([]string, error) {
	parsedForfeitAddr, err := btcutil.DecodeAddress(a.config.ForfeitAddress, nil)
	if err != nil {
		return nil, err
	}

	forfeitPkScript, err := txscript.PayToAddrScript(parsedForfeitAddr)
	if err != nil {
		return nil, err
	}

	parsedScript, err := txscript.ParsePkScript(forfeitPkScript)
	if err != nil {
		return nil, err
	}

	signedForfeits := make([]string, 0, len(vtxosToSign))

	for _, vtxo := range vtxosToSign {
		connectorOutpoint, ok := connectorsIndex[vtxo.Outpoint.String()]
		if !ok {
			return nil, fmt.Errorf("missing connector index for vtxo %s", vtxo.Outpoint.String())
		}

		var connector *wire.TxOut
		for _, level := range connectorsTree {
			for _, node := range level {
				if node.Txid != connectorOutpoint.Txid {
					continue
				}

				tx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
				if err != nil {
					return nil, err
				}
				if connectorOutpoint.VOut >= uint32(len(tx.UnsignedTx.TxOut)) {
					return nil, fmt.Errorf(
						"connector index out of bounds: %d >= %d",
						connectorOutpoint.VOut, len(tx.UnsignedTx.TxOut),
					)
				}
				connector = tx.UnsignedTx.TxOut[connectorOutpoint.VOut]
			}
		}

		if connector == nil {
			return nil, fmt.Errorf("connector not found for vtxo %s", vtxo.Outpoint.String())
		}

		vtxoScript, err := tree.ParseVtxoScript(vtxo.Tapscripts)
		if err != nil {
			return nil, err
		}

		vtxoTapKey, vtxoTapTree, err := vtxoScript.TapTree()
		if err != nil {
			return nil, err
		}

		vtxoOutputScript, err := common.P2TRScript(vtxoTapKey)
		if err != nil {
			return nil, err
		}

		vtxoTxHash, err := chainhash.NewHashFromStr(vtxo.Txid)
		if err != nil {
			return nil, err
		}

		vtxoInput := &wire.OutPoint{
			Hash:  *vtxoTxHash,
			Index: vtxo.VOut,
		}

		forfeitClosures := vtxoScript.ForfeitClosures()
		if len(forfeitClosures) <= 0 {
			return nil, fmt.Errorf("no forfeit closures found")
		}

		forfeitClosure := forfeitClosures[0]

		forfeitScript, err := forfeitClosure.Script()
		if err != nil {
			return nil, err
		}

		forfeitLeaf := txscript.NewBaseTapLeaf(forfeitScript)
		leafProof, err := vtxoTapTree.GetTaprootMerkleProof(forfeitLeaf.TapHash())
		if err != nil {
			return nil, err
		}

		tapscript := psbt.TaprootTapLeafScript{
			ControlBlock: leafProof.ControlBlock,
			Script:       leafProof.Script,
			LeafVersion:  txscript.BaseLeafVersion,
		}

		ctrlBlock, err := txscript.ParseControlBlock(leafProof.ControlBlock)
		if err != nil {
			return nil, err
		}

		feeAmount, err := common.ComputeForfeitTxFee(
			feeRate,
			&waddrmgr.Tapscript{
				RevealedScript: leafProof.Script,
				ControlBlock:   ctrlBlock,
			},
			forfeitClosure.WitnessSize(),
			parsedScript.Class(),
		)
		if err != nil {
			return nil, err
		}

		if feeAmount >= vtxo.Amount+uint64(connector.Value) {
			return nil, fmt.Errorf(
				"forfeit fee %d exceeds forfeited amount %d",
				feeAmount, vtxo.Amount+uint64(connector.Value),
			)
		}

		vtxoLocktime := common.AbsoluteLocktime(0)
		if cltv, ok := forfeitClosure.(*tree.CLTVMultisigClosure); ok {
			vtxoLocktime = cltv.Locktime
		}

		connectorOutpointHash, err := chainhash.NewHashFromStr(connectorOutpoint.Txid)
		if err != nil {
			return nil, err
		}

		forfeit, err := tree.BuildForfeitTx(
			&wire.OutPoint{
				Hash:  *connectorOutpointHash,
				Index: connectorOutpoint.VOut,
			},
			vtxoInput,
			vtxo.Amount,
			uint64(connector.Value),
			feeAmount,
			vtxoOutputScript,
			connector.PkScript,
			forfeitPkScript,
			uint32(vtxoLocktime),
		)
		if err != nil {
			return nil, err
		}

		forfeit.Inputs[1].TaprootLeafScript = []*psbt.TaprootTapLeafScript{&tapscript}

		b64, err := forfeit.B64Encode()
		if err != nil {
			return nil, err
		}

		// sign only the vtxo input, the connector input is the server's
		signedForfeit, err := identity.SignTransaction(ctx, a.explorer, b64, 1)
		if err != nil {
			return nil, err
		}

		signedForfeits = append(signedForfeits, signedForfeit)
	}

	return signedForfeits, nil
}

func (a *arkClient) forfeitPkScript() ([]byte, error) {
	parsedForfeitAddr, err := btcutil.DecodeAddress(a.config.ForfeitAddress, nil)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(parsedForfeitAddr)
}

func (a *arkClient) signingIdentity(options *SettleOptions) wallet.WalletService {
	if options.Identity != nil {
		return options.Identity
	}
	return a.wallet
}

// handleOptions derives the musig2 signer sessions taking part in the
// settlement and returns their public keys.
func (a *arkClient) handleOptions(
	ctx context.Context, options *SettleOptions,
	inputs []client.Input, notesInputs []string,
) ([]tree.SignerSession, []string, error) {
	sessions := make([]tree.SignerSession, 0)
	sessions = append(sessions, options.ExtraSignerSessions...)

	if !options.WalletSignerDisabled {
		outpoints := make([]client.Outpoint, 0, len(inputs))
		for _, input := range inputs {
			outpoints = append(outpoints, input.Outpoint)
		}

		signerSession, err := a.wallet.NewVtxoTreeSigner(
			ctx, inputsToDerivationPath(outpoints, notesInputs),
		)
		if err != nil {
			return nil, nil, err
		}
		sessions = append(sessions, signerSession)
	}

	if len(sessions) == 0 {
		return nil, nil, fmt.Errorf("no signer sessions")
	}

	pubkeys := make([]string, 0, len(sessions))
	for _, session := range sessions {
		pubkeys = append(pubkeys, session.GetPublicKey())
	}

	return sessions, pubkeys, nil
}
