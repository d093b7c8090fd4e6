package singlekeywallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/common/tree"
	"github.com/ark-network/ark-client-go/explorer"
	"github.com/ark-network/ark-client-go/internal/utils"
	"github.com/ark-network/ark-client-go/types"
	"github.com/ark-network/ark-client-go/wallet"
	walletstore "github.com/ark-network/ark-client-go/wallet/singlekey/store"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/vulpemventures/go-bip32"
)

type bitcoinWallet struct {
	*singlekeyWallet
}

func NewBitcoinWallet(
	configStore types.ConfigStore, walletStore walletstore.WalletStore,
) (wallet.WalletService, error) {
	walletData, err := walletStore.GetWallet()
	if err != nil {
		return nil, err
	}
	return &bitcoinWallet{
		&singlekeyWallet{
			configStore: configStore,
			walletStore: walletStore,
			walletData:  walletData,
		},
	}, nil
}

func (w *bitcoinWallet) GetAddresses(
	ctx context.Context,
) ([]wallet.TapscriptsAddress, []wallet.TapscriptsAddress, []wallet.TapscriptsAddress, error) {
	offchainAddr, boardingAddr, err := w.getArkAddresses(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	data, err := w.configStore.GetData(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	netParams := utils.ToBitcoinNetwork(data.Network)

	decodedAddr, err := common.DecodeAddress(offchainAddr.Address)
	if err != nil {
		return nil, nil, nil, err
	}

	redemptionAddr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(decodedAddr.VtxoTapKey), &netParams,
	)
	if err != nil {
		return nil, nil, nil, err
	}

	offchainAddrs := []wallet.TapscriptsAddress{*offchainAddr}
	boardingAddrs := []wallet.TapscriptsAddress{*boardingAddr}
	redemptionAddrs := []wallet.TapscriptsAddress{
		{
			Tapscripts: offchainAddr.Tapscripts,
			Address:    redemptionAddr.EncodeAddress(),
		},
	}

	return offchainAddrs, boardingAddrs, redemptionAddrs, nil
}

func (w *bitcoinWallet) NewAddress(
	ctx context.Context, _ bool,
) (*wallet.TapscriptsAddress, *wallet.TapscriptsAddress, error) {
	return w.getArkAddresses(ctx)
}

func (w *bitcoinWallet) SignTransaction(
	ctx context.Context, explorerSvc explorer.Explorer, tx string,
	inputIndexes ...int,
) (string, error) {
	if w.IsLocked() {
		return "", fmt.Errorf("wallet is locked")
	}

	ptx, err := psbt.NewFromRawBytes(strings.NewReader(tx), true)
	if err != nil {
		return "", err
	}

	updater, err := psbt.NewUpdater(ptx)
	if err != nil {
		return "", err
	}

	for i, input := range updater.Upsbt.UnsignedTx.TxIn {
		if updater.Upsbt.Inputs[i].WitnessUtxo != nil {
			continue
		}

		prevoutTxHex, err := explorerSvc.GetTxHex(input.PreviousOutPoint.Hash.String())
		if err != nil {
			return "", err
		}

		var prevoutTx wire.MsgTx
		if err := prevoutTx.Deserialize(hex.NewDecoder(strings.NewReader(prevoutTxHex))); err != nil {
			return "", err
		}

		utxo := prevoutTx.TxOut[input.PreviousOutPoint.Index]
		if utxo == nil {
			return "", fmt.Errorf("witness utxo not found")
		}

		if err := updater.AddInWitnessUtxo(utxo, i); err != nil {
			return "", err
		}

		if err := updater.AddInSighashType(txscript.SigHashDefault, i); err != nil {
			return "", err
		}
	}

	prevouts := make(map[wire.OutPoint]*wire.TxOut)
	for i, input := range updater.Upsbt.Inputs {
		outpoint := updater.Upsbt.UnsignedTx.TxIn[i].PreviousOutPoint
		prevouts[outpoint] = input.WitnessUtxo
	}

	prevoutFetcher := txscript.NewMultiPrevOutFetcher(prevouts)
	txsighashes := txscript.NewTxSigHashes(updater.Upsbt.UnsignedTx, prevoutFetcher)

	onchainPkScript, err := common.P2TRScript(
		txscript.ComputeTaprootKeyNoScript(w.walletData.PubKey),
	)
	if err != nil {
		return "", err
	}

	mustSignInput := func(i int) bool {
		if len(inputIndexes) == 0 {
			return true
		}
		for _, index := range inputIndexes {
			if index == i {
				return true
			}
		}
		return false
	}

	for i, input := range ptx.Inputs {
		if !mustSignInput(i) {
			continue
		}

		if len(input.TaprootLeafScript) > 0 {
			if err := w.signTapscriptSpend(updater, input, i, txsighashes, prevoutFetcher); err != nil {
				return "", err
			}
			continue
		}

		if input.WitnessUtxo != nil {
			// onchain P2TR
			if bytes.Equal(input.WitnessUtxo.PkScript, onchainPkScript) {
				updater.Upsbt.Inputs[i].TaprootInternalKey = schnorr.SerializePubKey(
					txscript.ComputeTaprootKeyNoScript(w.walletData.PubKey),
				)
				input = updater.Upsbt.Inputs[i]
			}
		}

		// taproot key path spend
		if len(input.TaprootInternalKey) > 0 {
			if err := w.signTaprootKeySpend(updater, input, i, txsighashes, prevoutFetcher); err != nil {
				return "", err
			}
		}
	}

	return ptx.B64Encode()
}

func (w *bitcoinWallet) signTapscriptSpend(
	updater *psbt.Updater,
	input psbt.PInput,
	inputIndex int,
	txsighashes *txscript.TxSigHashes,
	prevoutFetcher *txscript.MultiPrevOutFetcher,
) error {
	myPubkey := schnorr.SerializePubKey(w.walletData.PubKey)

	for _, leaf := range input.TaprootLeafScript {
		closure, err := tree.DecodeClosure(leaf.Script)
		if err != nil {
			// skip unknown leaf
			continue
		}

		if !closureContainsKey(closure, myPubkey) {
			continue
		}

		if err := updater.AddInSighashType(txscript.SigHashDefault, inputIndex); err != nil {
			return err
		}

		hash := txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script).TapHash()

		preimage, err := txscript.CalcTapscriptSignaturehash(
			txsighashes,
			txscript.SigHashDefault,
			updater.Upsbt.UnsignedTx,
			inputIndex,
			prevoutFetcher,
			txscript.NewBaseTapLeaf(leaf.Script),
		)
		if err != nil {
			return err
		}

		sig, err := schnorr.Sign(w.privateKey, preimage)
		if err != nil {
			return err
		}

		if len(updater.Upsbt.Inputs[inputIndex].TaprootScriptSpendSig) == 0 {
			updater.Upsbt.Inputs[inputIndex].TaprootScriptSpendSig = make([]*psbt.TaprootScriptSpendSig, 0)
		}

		updater.Upsbt.Inputs[inputIndex].TaprootScriptSpendSig = append(
			updater.Upsbt.Inputs[inputIndex].TaprootScriptSpendSig,
			&psbt.TaprootScriptSpendSig{
				XOnlyPubKey: myPubkey,
				LeafHash:    hash.CloneBytes(),
				Signature:   sig.Serialize(),
				SigHash:     txscript.SigHashDefault,
			},
		)
	}

	return nil
}

func (w *bitcoinWallet) signTaprootKeySpend(
	updater *psbt.Updater,
	input psbt.PInput,
	inputIndex int,
	txsighashes *txscript.TxSigHashes,
	prevoutFetcher *txscript.MultiPrevOutFetcher,
) error {
	if len(input.TaprootKeySpendSig) > 0 {
		// already signed, skip
		return nil
	}

	xOnlyPubkey := schnorr.SerializePubKey(txscript.ComputeTaprootKeyNoScript(w.walletData.PubKey))
	if !bytes.Equal(xOnlyPubkey, input.TaprootInternalKey) {
		// not the wallet's key, skip
		return nil
	}

	preimage, err := txscript.CalcTaprootSignatureHash(
		txsighashes,
		txscript.SigHashDefault,
		updater.Upsbt.UnsignedTx,
		inputIndex,
		prevoutFetcher,
	)
	if err != nil {
		return err
	}

	sig, err := schnorr.Sign(txscript.TweakTaprootPrivKey(*w.privateKey, nil), preimage)
	if err != nil {
		return err
	}

	updater.Upsbt.Inputs[inputIndex].TaprootKeySpendSig = sig.Serialize()

	return nil
}

func (w *bitcoinWallet) NewVtxoTreeSigner(
	_ context.Context, derivationPath string,
) (tree.SignerSession, error) {
	if w.IsLocked() {
		return nil, fmt.Errorf("wallet is locked")
	}

	if len(derivationPath) == 0 {
		return nil, fmt.Errorf("derivation path is required")
	}

	privKeyBytes := w.privateKey.Serialize()
	masterKey, err := bip32.NewMasterKey(privKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	paths := strings.Split(strings.TrimPrefix(derivationPath, "m/"), "/")
	currentKey := masterKey

	for _, pathComponent := range paths {
		index := uint32(0)
		isHardened := strings.HasSuffix(pathComponent, "'")
		if isHardened {
			pathComponent = strings.TrimSuffix(pathComponent, "'")
		}

		if _, err := fmt.Sscanf(pathComponent, "%d", &index); err != nil {
			return nil, fmt.Errorf("invalid path component %s: %w", pathComponent, err)
		}

		if isHardened {
			index += bip32.FirstHardenedChild
		}

		currentKey, err = currentKey.NewChildKey(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	derivedPrivKey := secp256k1.PrivKeyFromBytes(currentKey.Key)
	return tree.NewTreeSignerSession(derivedPrivKey), nil
}

func (w *bitcoinWallet) SignMessage(
	_ context.Context, message []byte,
) (string, error) {
	if w.IsLocked() {
		return "", fmt.Errorf("wallet is locked")
	}

	sig, err := schnorr.Sign(w.privateKey, message)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig.Serialize()), nil
}

func closureContainsKey(closure tree.Closure, pubkey []byte) bool {
	var keys []*secp256k1.PublicKey

	switch c := closure.(type) {
	case *tree.MultisigClosure:
		keys = c.PubKeys
	case *tree.CSVMultisigClosure:
		keys = c.PubKeys
	case *tree.CLTVMultisigClosure:
		keys = c.PubKeys
	case *tree.ConditionMultisigClosure:
		keys = c.PubKeys
	case *tree.ConditionCSVMultisigClosure:
		keys = c.PubKeys
	}

	for _, key := range keys {
		if bytes.Equal(schnorr.SerializePubKey(key), pubkey) {
			return true
		}
	}
	return false
}

func (w *bitcoinWallet) getArkAddresses(
	ctx context.Context,
) (*wallet.TapscriptsAddress, *wallet.TapscriptsAddress, error) {
	if w.walletData == nil {
		return nil, nil, fmt.Errorf("wallet not initialized")
	}

	data, err := w.configStore.GetData(ctx)
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, fmt.Errorf("config not set")
	}

	netParams := utils.ToBitcoinNetwork(data.Network)

	defaultVtxoScript := tree.NewDefaultVtxoScript(
		w.walletData.PubKey,
		data.ServerPubKey,
		data.UnilateralExitDelay,
	)

	vtxoTapKey, _, err := defaultVtxoScript.TapTree()
	if err != nil {
		return nil, nil, err
	}

	offchainAddress := &common.Address{
		HRP:        data.Network.Addr,
		Server:     data.ServerPubKey,
		VtxoTapKey: vtxoTapKey,
	}

	encodedOffchainAddr, err := offchainAddress.Encode()
	if err != nil {
		return nil, nil, err
	}

	boardingVtxoScript := tree.NewBoardingVtxoScript(
		w.walletData.PubKey,
		data.ServerPubKey,
		common.AbsoluteLocktime(data.BoardingExitDelay.Value),
	)

	boardingTapKey, _, err := boardingVtxoScript.TapTree()
	if err != nil {
		return nil, nil, err
	}

	boardingAddr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(boardingTapKey), &netParams,
	)
	if err != nil {
		return nil, nil, err
	}

	tapscripts, err := defaultVtxoScript.Encode()
	if err != nil {
		return nil, nil, err
	}

	boardingTapscripts, err := boardingVtxoScript.Encode()
	if err != nil {
		return nil, nil, err
	}

	return &wallet.TapscriptsAddress{
			Tapscripts: tapscripts,
			Address:    encodedOffchainAddr,
		},
		&wallet.TapscriptsAddress{
			Tapscripts: boardingTapscripts,
			Address:    boardingAddr.EncodeAddress(),
		},
		nil
}
