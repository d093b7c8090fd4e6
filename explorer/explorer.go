// Package explorer implements the chain indexer contract over the Esplora
// HTTP API.
package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Explorer interface {
	GetTxHex(txid string) (string, error)
	Broadcast(txHex string) (string, error)
	GetUtxos(addr string) ([]Utxo, error)
	GetTxBlockTime(txid string) (confirmed bool, blocktime int64, err error)
	BaseUrl() string
}

type explorerSvc struct {
	cache   map[string]string
	baseUrl string
	http    *http.Client
}

func NewExplorer(baseUrl string) Explorer {
	return &explorerSvc{
		cache:   make(map[string]string),
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *explorerSvc) BaseUrl() string {
	return e.baseUrl
}

func (e *explorerSvc) GetTxHex(txid string) (string, error) {
	if hex, ok := e.cache[txid]; ok {
		return hex, nil
	}

	resp, err := e.http.Get(fmt.Sprintf("%s/tx/%s/hex", e.baseUrl, txid))
	if err != nil {
		return "", err
	}
	// nolint:all
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get tx hex: %s", strings.TrimSpace(string(body)))
	}

	hex := strings.TrimSpace(string(body))
	e.cache[txid] = hex

	return hex, nil
}

func (e *explorerSvc) Broadcast(txHex string) (string, error) {
	resp, err := e.http.Post(
		fmt.Sprintf("%s/tx", e.baseUrl), "text/plain", bytes.NewBufferString(txHex),
	)
	if err != nil {
		return "", err
	}
	// nolint:all
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to broadcast: %s", strings.TrimSpace(string(body)))
	}

	return strings.TrimSpace(string(body)), nil
}

func (e *explorerSvc) GetUtxos(addr string) ([]Utxo, error) {
	resp, err := e.http.Get(fmt.Sprintf("%s/address/%s/utxo", e.baseUrl, addr))
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get utxos: %s", strings.TrimSpace(string(body)))
	}

	utxos := []Utxo{}
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to parse utxos: %s", err)
	}

	return utxos, nil
}

func (e *explorerSvc) GetTxBlockTime(txid string) (bool, int64, error) {
	resp, err := e.http.Get(fmt.Sprintf("%s/tx/%s/status", e.baseUrl, txid))
	if err != nil {
		return false, 0, err
	}
	// nolint:all
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, 0, err
	}

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("failed to get tx status: %s", strings.TrimSpace(string(body)))
	}

	status := txStatus{}
	if err := json.Unmarshal(body, &status); err != nil {
		return false, 0, fmt.Errorf("failed to parse tx status: %s", err)
	}

	return status.Confirmed, status.Blocktime, nil
}
