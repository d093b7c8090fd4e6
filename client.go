package arksdk

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ark-network/ark-client-go/client"
	restclient "github.com/ark-network/ark-client-go/client/rest"
	"github.com/ark-network/ark-client-go/common"
	"github.com/ark-network/ark-client-go/explorer"
	"github.com/ark-network/ark-client-go/types"
	"github.com/ark-network/ark-client-go/wallet"
	singlekeywallet "github.com/ark-network/ark-client-go/wallet/singlekey"
	walletstore "github.com/ark-network/ark-client-go/wallet/singlekey/store"
	filestore "github.com/ark-network/ark-client-go/wallet/singlekey/store/file"
	inmemorystore "github.com/ark-network/ark-client-go/wallet/singlekey/store/inmemory"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	log "github.com/sirupsen/logrus"
)

const pingInterval = time.Second

type InitArgs struct {
	ServerUrl   string
	ExplorerURL string
	WalletType  string
	ClientType  string
	Password    string
	Seed        string
}

func (a InitArgs) validate() error {
	if len(a.ServerUrl) <= 0 {
		return ErrMissingServerURL
	}
	if len(a.WalletType) <= 0 {
		return fmt.Errorf("missing wallet type")
	}
	if len(a.ClientType) <= 0 {
		return fmt.Errorf("missing client type")
	}
	return nil
}

type arkClient struct {
	config   *types.Config
	store    types.Store
	wallet   wallet.WalletService
	explorer explorer.Explorer
	client   client.TransportClient
}

// NewArkClient returns an uninitialized ark client backed by the given
// store, Init must be called before any other operation.
func NewArkClient(sdkStore types.Store) (ArkClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk store")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}

	if cfgData != nil {
		return nil, ErrAlreadyInitialized
	}

	return &arkClient{store: sdkStore}, nil
}

// LoadArkClient resumes a client from a previously initialized store.
func LoadArkClient(sdkStore types.Store) (ArkClient, error) {
	if sdkStore == nil {
		return nil, fmt.Errorf("missing sdk store")
	}

	cfgData, err := sdkStore.ConfigStore().GetData(context.Background())
	if err != nil {
		return nil, err
	}
	if cfgData == nil {
		return nil, ErrNotInitialized
	}

	clientSvc, err := getClient(cfgData.ClientType, cfgData.ServerUrl)
	if err != nil {
		return nil, err
	}

	explorerSvc := explorer.NewExplorer(cfgData.ExplorerURL)

	walletSvc, err := getWallet(sdkStore.ConfigStore(), cfgData)
	if err != nil {
		return nil, err
	}

	return &arkClient{
		config:   cfgData,
		store:    sdkStore,
		wallet:   walletSvc,
		explorer: explorerSvc,
		client:   clientSvc,
	}, nil
}

func (a *arkClient) Init(ctx context.Context, args InitArgs) error {
	if err := args.validate(); err != nil {
		return err
	}

	clientSvc, err := getClient(args.ClientType, args.ServerUrl)
	if err != nil {
		return err
	}

	info, err := clientSvc.GetInfo(ctx)
	if err != nil {
		return err
	}

	network, ok := common.NetworkFromString(info.Network)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, info.Network)
	}

	serverPubkeyBytes, err := hex.DecodeString(info.PubKey)
	if err != nil {
		return fmt.Errorf("invalid server pubkey: %w", err)
	}
	serverPubkey, err := secp256k1.ParsePubKey(serverPubkeyBytes)
	if err != nil {
		return fmt.Errorf("invalid server pubkey: %w", err)
	}

	explorerSvc := explorer.NewExplorer(args.ExplorerURL)

	cfgData := types.Config{
		ServerUrl:    args.ServerUrl,
		ServerPubKey: serverPubkey,
		WalletType:   args.WalletType,
		ClientType:   args.ClientType,
		Network:      network,
		VtxoTreeExpiry: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: uint32(info.VtxoTreeExpiry),
		},
		RoundInterval: info.RoundInterval,
		UnilateralExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: uint32(info.UnilateralExitDelay),
		},
		BoardingExitDelay: common.RelativeLocktime{
			Type: common.LocktimeTypeBlock, Value: uint32(info.BoardingExitDelay),
		},
		Dust:           info.Dust,
		ExplorerURL:    args.ExplorerURL,
		ForfeitAddress: info.ForfeitAddress,
	}

	if err := a.store.ConfigStore().AddData(ctx, cfgData); err != nil {
		return err
	}

	walletSvc, err := getWallet(a.store.ConfigStore(), &cfgData)
	if err != nil {
		// nolint:all
		a.store.ConfigStore().CleanData(ctx)
		return err
	}

	if _, err := walletSvc.Create(ctx, args.Password, args.Seed); err != nil {
		// nolint:all
		a.store.ConfigStore().CleanData(ctx)
		return err
	}

	a.config = &cfgData
	a.wallet = walletSvc
	a.explorer = explorerSvc
	a.client = clientSvc

	return nil
}

func (a *arkClient) GetConfigData(_ context.Context) (*types.Config, error) {
	if a.config == nil {
		return nil, ErrNotInitialized
	}
	return a.config, nil
}

func (a *arkClient) Unlock(ctx context.Context, password string) error {
	if err := a.safeCheck(); err != nil {
		return err
	}
	_, err := a.wallet.Unlock(ctx, password)
	return err
}

func (a *arkClient) Lock(ctx context.Context, password string) error {
	if err := a.safeCheck(); err != nil {
		return err
	}
	return a.wallet.Lock(ctx, password)
}

func (a *arkClient) IsLocked(_ context.Context) bool {
	if a.wallet == nil {
		return true
	}
	return a.wallet.IsLocked()
}

func (a *arkClient) Receive(ctx context.Context) (string, string, error) {
	if err := a.safeCheck(); err != nil {
		return "", "", err
	}

	offchainAddr, boardingAddr, err := a.wallet.NewAddress(ctx, false)
	if err != nil {
		return "", "", err
	}

	return offchainAddr.Address, boardingAddr.Address, nil
}

func (a *arkClient) Balance(ctx context.Context) (*Balance, error) {
	if err := a.safeCheck(); err != nil {
		return nil, err
	}

	vtxos, err := a.getVtxos(ctx, nil)
	if err != nil {
		return nil, err
	}

	offchainBalance := uint64(0)
	for _, vtxo := range vtxos {
		offchainBalance += vtxo.Amount
	}

	boardingUtxos, err := a.getClaimableBoardingUtxos(ctx)
	if err != nil {
		return nil, err
	}

	boardingBalance := uint64(0)
	for _, utxo := range boardingUtxos {
		boardingBalance += utxo.Amount
	}

	return &Balance{
		OffchainBalance: offchainBalance,
		BoardingBalance: boardingBalance,
	}, nil
}

func (a *arkClient) ListVtxos(
	ctx context.Context,
) (spendable, spent []client.Vtxo, err error) {
	if err := a.safeCheck(); err != nil {
		return nil, nil, err
	}

	offchainAddrs, _, _, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return nil, nil, err
	}

	for _, addr := range offchainAddrs {
		spendableForAddr, spentForAddr, err := a.client.ListVtxos(ctx, addr.Address)
		if err != nil {
			return nil, nil, err
		}
		spendable = append(spendable, spendableForAddr...)
		spent = append(spent, spentForAddr...)
	}

	return
}

func (a *arkClient) Stop() {
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *arkClient) safeCheck() error {
	if a.config == nil || a.wallet == nil {
		return ErrNotInitialized
	}
	return nil
}

// ping sends a keep-alive for the given request id every second, it
// returns the function stopping the loop.
func (a *arkClient) ping(ctx context.Context, requestID string) func() {
	ticker := time.NewTicker(pingInterval)
	pingCtx, cancel := context.WithCancel(ctx)

	go func(t *time.Ticker) {
		if err := a.client.Ping(pingCtx, requestID); err != nil {
			log.Warnf("failed to ping server: %s", err)
		}
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-t.C:
				if err := a.client.Ping(pingCtx, requestID); err != nil {
					log.Warnf("failed to ping server: %s", err)
				}
			}
		}
	}(ticker)

	return func() {
		ticker.Stop()
		cancel()
	}
}

func (a *arkClient) getVtxos(
	ctx context.Context, opts *SettleOptions,
) ([]client.TapscriptsVtxo, error) {
	offchainAddrs, _, _, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return nil, err
	}

	vtxos := make([]client.TapscriptsVtxo, 0)
	for _, offchainAddr := range offchainAddrs {
		spendableVtxos, _, err := a.client.ListVtxos(ctx, offchainAddr.Address)
		if err != nil {
			return nil, err
		}

		for _, v := range spendableVtxos {
			vtxos = append(vtxos, client.TapscriptsVtxo{
				Vtxo:       v,
				Tapscripts: offchainAddr.Tapscripts,
			})
		}
	}

	return vtxos, nil
}

func (a *arkClient) getClaimableBoardingUtxos(
	ctx context.Context,
) ([]types.Utxo, error) {
	_, boardingAddrs, _, err := a.wallet.GetAddresses(ctx)
	if err != nil {
		return nil, err
	}

	claimable := make([]types.Utxo, 0)
	for _, addr := range boardingAddrs {
		boardingUtxos, err := a.explorer.GetUtxos(addr.Address)
		if err != nil {
			return nil, err
		}

		for _, utxo := range boardingUtxos {
			claimable = append(claimable, utxo.ToUtxo(
				a.config.BoardingExitDelay, addr.Tapscripts,
			))
		}
	}

	return claimable, nil
}

func getClient(clientType, serverUrl string) (client.TransportClient, error) {
	switch clientType {
	case client.RestClient:
		return restclient.NewClient(serverUrl)
	default:
		return nil, fmt.Errorf("unknown client type %s", clientType)
	}
}

func getWallet(
	configStore types.ConfigStore, data *types.Config,
) (wallet.WalletService, error) {
	switch data.WalletType {
	case wallet.SingleKeyWallet:
		walletStore, err := getWalletStore(
			configStore.GetType(), configStore.GetDatadir(),
		)
		if err != nil {
			return nil, err
		}
		return singlekeywallet.NewBitcoinWallet(configStore, walletStore)
	default:
		return nil, fmt.Errorf("unknown wallet type %s", data.WalletType)
	}
}

func getWalletStore(storeType, datadir string) (walletstore.WalletStore, error) {
	switch storeType {
	case types.InMemoryStore:
		return inmemorystore.NewWalletStore()
	case types.FileStore:
		return filestore.NewWalletStore(datadir)
	default:
		return nil, fmt.Errorf("unknown wallet store type %s", storeType)
	}
}
