package utils

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/types"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func GenerateRandomPrivateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

func HashPassword(password []byte) []byte {
	hash := sha256.Sum256(password)
	return hash[:]
}

func ToBitcoinNetwork(net common.Network) chaincfg.Params {
	switch net.Name {
	case common.Bitcoin.Name:
		return chaincfg.MainNetParams
	case common.BitcoinTestNet.Name:
		return chaincfg.TestNet3Params
	case common.BitcoinSigNet.Name, common.BitcoinMutinyNet.Name:
		return chaincfg.SigNetParams
	case common.BitcoinRegTest.Name:
		return chaincfg.RegressionNetParams
	default:
		return chaincfg.MainNetParams
	}
}

// ParseBitcoinAddress returns whether the given address is an onchain
// bitcoin address, along with its output script.
func ParseBitcoinAddress(
	addr string, net chaincfg.Params,
) (bool, []byte, error) {
	if _, err := common.DecodeAddress(addr); err == nil {
		// offchain ark address
		return false, nil, nil
	}

	btcAddr, err := btcutil.DecodeAddress(addr, &net)
	if err != nil {
		return false, nil, err
	}

	onchainScript, err := txscript.PayToAddrScript(btcAddr)
	if err != nil {
		return false, nil, err
	}

	return true, onchainScript, nil
}

func IsOnchainOnly(receivers []client.Output) bool {
	for _, receiver := range receivers {
		if _, err := common.DecodeAddress(receiver.Address); err == nil {
			return false
		}
	}
	return true
}

// CoinSelect selects boarding utxos and vtxos to reach the target amount,
// smallest-expiry first when sortByExpirationTime is set, otherwise
// smallest-amount first. When the change is below dust, the first
// unselected vtxo (or, if none is left, the first unselected boarding utxo)
// is added to the selection and its amount to the change; with no coin left
// the change is returned as is.
func CoinSelect(
	boardingUtxos []types.Utxo, vtxos []client.TapscriptsVtxo,
	amount, dust uint64, sortByExpirationTime bool,
) ([]types.Utxo, []client.TapscriptsVtxo, uint64, error) {
	selected := make([]client.TapscriptsVtxo, 0)
	selectedBoarding := make([]types.Utxo, 0)
	notSelected := make([]client.TapscriptsVtxo, 0)
	notSelectedBoarding := make([]types.Utxo, 0)
	selectedAmount := uint64(0)

	if sortByExpirationTime {
		// sort vtxos by expiration (first to expire first)
		sort.SliceStable(vtxos, func(i, j int) bool {
			return vtxos[i].ExpiresAt.Before(vtxos[j].ExpiresAt)
		})
		sort.SliceStable(boardingUtxos, func(i, j int) bool {
			return boardingUtxos[i].SpendableAt.Before(boardingUtxos[j].SpendableAt)
		})
	} else {
		sort.SliceStable(vtxos, func(i, j int) bool {
			return vtxos[i].Amount < vtxos[j].Amount
		})
		sort.SliceStable(boardingUtxos, func(i, j int) bool {
			return boardingUtxos[i].Amount < boardingUtxos[j].Amount
		})
	}

	for _, boardingUtxo := range boardingUtxos {
		if selectedAmount >= amount {
			notSelectedBoarding = append(notSelectedBoarding, boardingUtxo)
			continue
		}

		selectedBoarding = append(selectedBoarding, boardingUtxo)
		selectedAmount += boardingUtxo.Amount
	}

	for _, vtxo := range vtxos {
		if selectedAmount >= amount {
			notSelected = append(notSelected, vtxo)
			continue
		}

		selected = append(selected, vtxo)
		selectedAmount += vtxo.Amount
	}

	if selectedAmount < amount {
		return nil, nil, 0, fmt.Errorf(
			"not enough funds to cover amount %d, available %d", amount, selectedAmount,
		)
	}

	change := selectedAmount - amount

	if change < dust {
		if len(notSelected) > 0 {
			selected = append(selected, notSelected[0])
			change += notSelected[0].Amount
		} else if len(notSelectedBoarding) > 0 {
			selectedBoarding = append(selectedBoarding, notSelectedBoarding[0])
			change += notSelectedBoarding[0].Amount
		}
	}

	return selectedBoarding, selected, change, nil
}
