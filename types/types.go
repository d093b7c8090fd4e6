package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ark-network/ark-client-go/common"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	InMemoryStore = "inmemory"
	FileStore     = "file"
)

// Config is the wallet configuration fetched from the server at init time
// and persisted through the ConfigStore.
type Config struct {
	ServerUrl           string
	ServerPubKey        *secp256k1.PublicKey
	WalletType          string
	ClientType          string
	Network             common.Network
	VtxoTreeExpiry      common.RelativeLocktime
	RoundInterval       int64
	UnilateralExitDelay common.RelativeLocktime
	BoardingExitDelay   common.RelativeLocktime
	Dust                uint64
	ExplorerURL         string
	ForfeitAddress      string
}

type VtxoKey struct {
	Txid string
	VOut uint32
}

func (v VtxoKey) String() string {
	return fmt.Sprintf("%s:%s", v.Txid, strconv.Itoa(int(v.VOut)))
}

type Vtxo struct {
	VtxoKey
	PubKey    string
	Amount    uint64
	RoundTxid string
	ExpiresAt time.Time
	CreatedAt time.Time
	Pending   bool
	SpentBy   string
	Spent     bool
}

type Utxo struct {
	Txid        string
	VOut        uint32
	Amount      uint64
	Delay       common.RelativeLocktime
	SpendableAt time.Time
	CreatedAt   time.Time
	Tapscripts  []string
	Spent       bool
}

func (u *Utxo) Sequence() (uint32, error) {
	return common.BIP68Sequence(u.Delay)
}
