package store

import (
	"fmt"

	badgerstore "github.com/ark-network/ark-client-go/store/badger"
	filestore "github.com/ark-network/ark-client-go/store/file"
	inmemorystore "github.com/ark-network/ark-client-go/store/inmemory"
	"github.com/ark-network/ark-client-go/types"
)

// Config describes which backends the store service uses.
type Config struct {
	ConfigStoreType  string
	AppDataStoreType string

	BaseDir string
}

type service struct {
	configStore types.ConfigStore
	vtxoStore   types.VtxoStore
}

// NewStore builds the persistence service: an in-memory or file-backed
// config store, optionally paired with a badger vtxo store.
func NewStore(storeConfig Config) (types.Store, error) {
	var (
		configStore types.ConfigStore
		vtxoStore   types.VtxoStore
		err         error
	)

	switch storeConfig.ConfigStoreType {
	case types.InMemoryStore:
		configStore = inmemorystore.NewConfigStore()
	case types.FileStore:
		configStore, err = filestore.NewConfigStore(storeConfig.BaseDir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown config store type %s", storeConfig.ConfigStoreType)
	}

	switch storeConfig.AppDataStoreType {
	case "", types.InMemoryStore:
		vtxoStore = inmemorystore.NewVtxoStore()
	case "badger":
		vtxoStore, err = badgerstore.NewVtxoStore(storeConfig.BaseDir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown app data store type %s", storeConfig.AppDataStoreType)
	}

	return &service{
		configStore: configStore,
		vtxoStore:   vtxoStore,
	}, nil
}

func (s *service) ConfigStore() types.ConfigStore {
	return s.configStore
}

func (s *service) VtxoStore() types.VtxoStore {
	return s.vtxoStore
}

func (s *service) Close() {
	s.configStore.Close()
	s.vtxoStore.Close()
}
