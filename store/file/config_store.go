package filestore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const configStoreFilename = "state.json"

type storeData struct {
	ServerUrl           string `json:"server_url"`
	ServerPubKey        string `json:"server_pubkey"`
	WalletType          string `json:"wallet_type"`
	ClientType          string `json:"client_type"`
	Network             string `json:"network"`
	VtxoTreeExpiryType  uint   `json:"vtxo_tree_expiry_type"`
	VtxoTreeExpiry      uint32 `json:"vtxo_tree_expiry"`
	RoundInterval       int64  `json:"round_interval"`
	UnilateralExitType  uint   `json:"unilateral_exit_delay_type"`
	UnilateralExitDelay uint32 `json:"unilateral_exit_delay"`
	BoardingExitType    uint   `json:"boarding_exit_delay_type"`
	BoardingExitDelay   uint32 `json:"boarding_exit_delay"`
	Dust                uint64 `json:"dust"`
	ExplorerURL         string `json:"explorer_url"`
	ForfeitAddress      string `json:"forfeit_address"`
}

func (d storeData) isEmpty() bool {
	return d.ServerUrl == ""
}

type configStore struct {
	filePath string
	lock     sync.Mutex
}

func NewConfigStore(baseDir string) (types.ConfigStore, error) {
	if len(baseDir) <= 0 {
		return nil, fmt.Errorf("missing base directory")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to initialize datadir: %s", err)
	}

	return &configStore{filePath: filepath.Join(baseDir, configStoreFilename)}, nil
}

func (s *configStore) Close() {}

func (s *configStore) GetType() string {
	return types.FileStore
}

func (s *configStore) GetDatadir() string {
	return filepath.Dir(s.filePath)
}

func (s *configStore) AddData(_ context.Context, data types.Config) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	serverPubkey := ""
	if data.ServerPubKey != nil {
		serverPubkey = hex.EncodeToString(data.ServerPubKey.SerializeCompressed())
	}

	sd := storeData{
		ServerUrl:           data.ServerUrl,
		ServerPubKey:        serverPubkey,
		WalletType:          data.WalletType,
		ClientType:          data.ClientType,
		Network:             data.Network.Name,
		VtxoTreeExpiryType:  uint(data.VtxoTreeExpiry.Type),
		VtxoTreeExpiry:      data.VtxoTreeExpiry.Value,
		RoundInterval:       data.RoundInterval,
		UnilateralExitType:  uint(data.UnilateralExitDelay.Type),
		UnilateralExitDelay: data.UnilateralExitDelay.Value,
		BoardingExitType:    uint(data.BoardingExitDelay.Type),
		BoardingExitDelay:   data.BoardingExitDelay.Value,
		Dust:                data.Dust,
		ExplorerURL:         data.ExplorerURL,
		ForfeitAddress:      data.ForfeitAddress,
	}

	return s.write(sd)
}

func (s *configStore) GetData(_ context.Context) (*types.Config, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	sd, err := s.open()
	if err != nil {
		return nil, err
	}
	if sd.isEmpty() {
		return nil, nil
	}

	var serverPubKey *secp256k1.PublicKey
	if sd.ServerPubKey != "" {
		buf, err := hex.DecodeString(sd.ServerPubKey)
		if err != nil {
			return nil, err
		}
		serverPubKey, err = secp256k1.ParsePubKey(buf)
		if err != nil {
			return nil, err
		}
	}

	network, _ := common.NetworkFromString(sd.Network)

	return &types.Config{
		ServerUrl:    sd.ServerUrl,
		ServerPubKey: serverPubKey,
		WalletType:   sd.WalletType,
		ClientType:   sd.ClientType,
		Network:      network,
		VtxoTreeExpiry: common.RelativeLocktime{
			Type: common.RelativeLocktimeType(sd.VtxoTreeExpiryType), Value: sd.VtxoTreeExpiry,
		},
		RoundInterval: sd.RoundInterval,
		UnilateralExitDelay: common.RelativeLocktime{
			Type: common.RelativeLocktimeType(sd.UnilateralExitType), Value: sd.UnilateralExitDelay,
		},
		BoardingExitDelay: common.RelativeLocktime{
			Type: common.RelativeLocktimeType(sd.BoardingExitType), Value: sd.BoardingExitDelay,
		},
		Dust:           sd.Dust,
		ExplorerURL:    sd.ExplorerURL,
		ForfeitAddress: sd.ForfeitAddress,
	}, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.write(storeData{})
}

func (s *configStore) open() (*storeData, error) {
	sd := &storeData{}

	file, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return sd, nil
		}
		return nil, fmt.Errorf("failed to open store: %s", err)
	}

	if err := json.Unmarshal(file, sd); err != nil {
		return nil, fmt.Errorf("failed to parse store: %s", err)
	}

	return sd, nil
}

func (s *configStore) write(sd storeData) error {
	buf, err := json.MarshalIndent(sd, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.filePath, buf, 0600)
}
