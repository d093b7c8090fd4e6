package badgerstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ark-network/ark-client-go/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const vtxoStoreDir = "vtxos"

type vtxoStore struct {
	db *badgerhold.Store
}

// NewVtxoStore opens a badger-backed vtxo store, in-memory when dir is
// empty.
func NewVtxoStore(dir string) (types.VtxoStore, error) {
	badgerDb, err := createDB(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open vtxo store: %s", err)
	}
	return &vtxoStore{db: badgerDb}, nil
}

func (s *vtxoStore) AddVtxos(_ context.Context, vtxos []types.Vtxo) error {
	for _, vtxo := range vtxos {
		if err := s.db.Upsert(vtxo.VtxoKey.String(), &vtxo); err != nil {
			return err
		}
	}
	return nil
}

func (s *vtxoStore) UpdateVtxos(ctx context.Context, vtxos []types.Vtxo) error {
	return s.AddVtxos(ctx, vtxos)
}

func (s *vtxoStore) GetAllVtxos(
	_ context.Context,
) (spendable []types.Vtxo, spent []types.Vtxo, err error) {
	var allVtxos []types.Vtxo
	if err := s.db.Find(&allVtxos, nil); err != nil {
		return nil, nil, err
	}

	for _, vtxo := range allVtxos {
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
	vtxos := make([]types.Vtxo, 0, len(keys))
	for _, key := range keys {
		var vtxo types.Vtxo
		if err := s.db.Get(key.String(), &vtxo); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, err
		}
		vtxos = append(vtxos, vtxo)
	}
	return vtxos, nil
}

func (s *vtxoStore) Close() {
	// nolint:all
	s.db.Close()
}

func createDB(dbDir string) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Dir = filepath.Join(dbDir, vtxoStoreDir)
		opts.ValueDir = opts.Dir
		opts.Compression = 0
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
