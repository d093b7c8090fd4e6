package explorer

import (
	"time"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/types"
)

type Utxo struct {
	Txid   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount uint64 `json:"value"`
	Status struct {
		Confirmed bool  `json:"confirmed"`
		Blocktime int64 `json:"block_time"`
	} `json:"status"`
}

type txStatus struct {
	Confirmed bool  `json:"confirmed"`
	Blocktime int64 `json:"block_time"`
}

// ToUtxo attaches the script data and spendability delay to a chain utxo.
func (e Utxo) ToUtxo(delay common.RelativeLocktime, tapscripts []string) types.Utxo {
	utxo := types.Utxo{
		Txid:       e.Txid,
		VOut:       e.Vout,
		Amount:     e.Amount,
		Delay:      delay,
		Tapscripts: tapscripts,
	}

	if e.Status.Confirmed {
		createdAt := time.Unix(e.Status.Blocktime, 0)
		utxo.CreatedAt = createdAt
		utxo.SpendableAt = createdAt.Add(
			time.Duration(delay.Seconds()) * time.Second,
		)
	}

	return utxo
}
