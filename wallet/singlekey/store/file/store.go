package filestore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	walletstore "github.com/ark-network/ark-client-go/wallet/singlekey/store"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const walletStoreFilename = "wallet.json"

type walletData struct {
	EncryptedPrvkey string `json:"encrypted_private_key"`
	PasswordHash    string `json:"password_hash"`
	PubKey          string `json:"pubkey"`
}

type fileStore struct {
	filePath string
	lock     sync.Mutex
}

func NewWalletStore(baseDir string) (walletstore.WalletStore, error) {
	if len(baseDir) <= 0 {
		return nil, fmt.Errorf("missing base directory")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to initialize datadir: %s", err)
	}

	return &fileStore{filePath: filepath.Join(baseDir, walletStoreFilename)}, nil
}

func (s *fileStore) AddWallet(data walletstore.WalletData) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	wd := walletData{
		EncryptedPrvkey: hex.EncodeToString(data.EncryptedPrvkey),
		PasswordHash:    hex.EncodeToString(data.PasswordHash),
		PubKey:          hex.EncodeToString(data.PubKey.SerializeCompressed()),
	}

	buf, err := json.MarshalIndent(wd, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.filePath, buf, 0600)
}

func (s *fileStore) GetWallet() (*walletstore.WalletData, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	file, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	wd := walletData{}
	if err := json.Unmarshal(file, &wd); err != nil {
		return nil, err
	}

	encryptedPrvkey, err := hex.DecodeString(wd.EncryptedPrvkey)
	if err != nil {
		return nil, err
	}
	passwordHash, err := hex.DecodeString(wd.PasswordHash)
	if err != nil {
		return nil, err
	}
	pubkeyBytes, err := hex.DecodeString(wd.PubKey)
	if err != nil {
		return nil, err
	}
	pubkey, err := secp256k1.ParsePubKey(pubkeyBytes)
	if err != nil {
		return nil, err
	}

	return &walletstore.WalletData{
		EncryptedPrvkey: encryptedPrvkey,
		PasswordHash:    passwordHash,
		PubKey:          pubkey,
	}, nil
}
