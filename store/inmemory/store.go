package inmemorystore

import (
	"context"
	"sync"

	"github.com/ark-network/ark-client-go/types"
)

type configStore struct {
	data *types.Config
	lock *sync.RWMutex
}

func NewConfigStore() types.ConfigStore {
	return &configStore{lock: &sync.RWMutex{}}
}

func (s *configStore) GetType() string {
	return types.InMemoryStore
}

func (s *configStore) GetDatadir() string {
	return ""
}

func (s *configStore) AddData(_ context.Context, data types.Config) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.data = &data
	return nil
}

func (s *configStore) GetData(_ context.Context) (*types.Config, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.data, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.data = nil
	return nil
}

func (s *configStore) Close() {}

type vtxoStore struct {
	vtxos map[types.VtxoKey]types.Vtxo
	lock  *sync.RWMutex
}

func NewVtxoStore() types.VtxoStore {
	return &vtxoStore{
		vtxos: make(map[types.VtxoKey]types.Vtxo),
		lock:  &sync.RWMutex{},
	}
}

func (s *vtxoStore) AddVtxos(_ context.Context, vtxos []types.Vtxo) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, vtxo := range vtxos {
		s.vtxos[vtxo.VtxoKey] = vtxo
	}
	return nil
}

func (s *vtxoStore) UpdateVtxos(_ context.Context, vtxos []types.Vtxo) error {
	return s.AddVtxos(context.Background(), vtxos)
}

func (s *vtxoStore) GetAllVtxos(
	_ context.Context,
) (spendable []types.Vtxo, spent []types.Vtxo, err error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, vtxo := range s.vtxos {
		if vtxo.Spent {
			spent = append(spent, vtxo)
		} else {
			spendable = append(spendable, vtxo)
		}
	}
	return
}

func (s *vtxoStore) GetVtxos(
	_ context.Context, keys []types.VtxoKey,
) ([]types.Vtxo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	vtxos := make([]types.Vtxo, 0, len(keys))
	for _, key := range keys {
		if vtxo, ok := s.vtxos[key]; ok {
			vtxos = append(vtxos, vtxo)
		}
	}
	return vtxos, nil
}

func (s *vtxoStore) Close() {}
