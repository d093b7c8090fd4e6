// Package restclient implements the Ark transport over JSON/HTTP, with a
// newline-delimited JSON event stream.
package restclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ark-network/ark-client-go/client"
	"github.com/ark-network/ark-client-go/common/tree"
	log "github.com/sirupsen/logrus"
)

const (
	requestTimeout = 15 * time.Second

	// maximum size of a single event stream line
	maxEventSize = 16 * 1024 * 1024
)

type restClient struct {
	serverURL string
	http      *http.Client
	// streaming requests use a client without timeout, cancellation comes
	// from the caller's context
	streamHTTP *http.Client
}

func NewClient(serverURL string) (client.TransportClient, error) {
	if len(serverURL) <= 0 {
		return nil, fmt.Errorf("missing server url")
	}

	return &restClient{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		http:       &http.Client{Timeout: requestTimeout},
		streamHTTP: &http.Client{},
	}, nil
}

func (c *restClient) Close() {}

func (c *restClient) GetInfo(ctx context.Context) (*client.Info, error) {
	resp := &infoResponse{}
	if err := c.get(ctx, "/v1/info", resp); err != nil {
		return nil, err
	}

	return &client.Info{
		PubKey:              resp.Pubkey,
		VtxoTreeExpiry:      resp.VtxoTreeExpiry,
		UnilateralExitDelay: resp.UnilateralExitDelay,
		BoardingExitDelay:   resp.BoardingExitDelay,
		RoundInterval:       resp.RoundInterval,
		Network:             resp.Network,
		Dust:                resp.Dust,
		ForfeitAddress:      resp.ForfeitAddress,
	}, nil
}

func (c *restClient) RegisterInputsForNextRound(
	ctx context.Context, inputs []client.Input, notes []string,
) (string, error) {
	body := registerInputsRequest{
		Inputs: make([]inputDTO, 0, len(inputs)),
		Notes:  notes,
	}
	for _, input := range inputs {
		body.Inputs = append(body.Inputs, inputDTO{
			Outpoint: outpointDTO{
				Txid: input.Txid,
				Vout: input.VOut,
			},
			Tapscripts: input.Tapscripts,
		})
	}

	resp := &registerInputsResponse{}
	if err := c.post(ctx, "/v1/round/registerInputs", body, resp); err != nil {
		return "", err
	}

	if resp.RequestID == "" {
		return "", &client.ProtocolError{Message: "missing request id"}
	}

	return resp.RequestID, nil
}

func (c *restClient) RegisterOutputsForNextRound(
	ctx context.Context, requestID string, outputs []client.Output,
	cosignersPublicKeys []string, signAll bool,
) error {
	body := registerOutputsRequest{
		RequestID:           requestID,
		Outputs:             make([]outputDTO, 0, len(outputs)),
		CosignersPublicKeys: cosignersPublicKeys,
		SignAll:             signAll,
	}
	for _, output := range outputs {
		body.Outputs = append(body.Outputs, outputDTO{
			Address: output.Address,
			Amount:  output.Amount,
		})
	}

	return c.post(ctx, "/v1/round/registerOutputs", body, nil)
}

func (c *restClient) SubmitTreeNonces(
	ctx context.Context, roundID, cosignerPubkey string, nonces tree.TreeNonces,
) error {
	var serialized bytes.Buffer
	if err := nonces.Encode(&serialized); err != nil {
		return err
	}

	body := submitTreeNoncesRequest{
		RoundID:    roundID,
		Pubkey:     cosignerPubkey,
		TreeNonces: hex.EncodeToString(serialized.Bytes()),
	}

	return c.post(ctx, "/v1/round/tree/submitNonces", body, nil)
}

func (c *restClient) SubmitTreeSignatures(
	ctx context.Context, roundID, cosignerPubkey string, signatures tree.TreePartialSigs,
) error {
	var serialized bytes.Buffer
	if err := signatures.Encode(&serialized); err != nil {
		return err
	}

	body := submitTreeSignaturesRequest{
		RoundID:        roundID,
		Pubkey:         cosignerPubkey,
		TreeSignatures: hex.EncodeToString(serialized.Bytes()),
	}

	return c.post(ctx, "/v1/round/tree/submitSignatures", body, nil)
}

func (c *restClient) SubmitSignedForfeitTxs(
	ctx context.Context, signedForfeitTxs []string, signedRoundTx string,
) error {
	body := submitForfeitTxsRequest{
		SignedForfeitTxs: signedForfeitTxs,
		SignedRoundTx:    signedRoundTx,
	}

	return c.post(ctx, "/v1/round/submitForfeitTxs", body, nil)
}

func (c *restClient) Ping(ctx context.Context, requestID string) error {
	return c.get(ctx, "/v1/round/ping/"+requestID, nil)
}

func (c *restClient) SubmitRedeemTx(
	ctx context.Context, signedRedeemTx string,
) (string, error) {
	resp := &submitRedeemTxResponse{}
	if err := c.post(ctx, "/v1/redeem-tx", submitRedeemTxRequest{
		RedeemTx: signedRedeemTx,
	}, resp); err != nil {
		return "", err
	}

	return resp.Txid, nil
}

func (c *restClient) ListVtxos(
	ctx context.Context, addr string,
) ([]client.Vtxo, []client.Vtxo, error) {
	resp := &listVtxosResponse{}
	if err := c.get(ctx, "/v1/vtxos/"+addr, resp); err != nil {
		return nil, nil, err
	}

	spendable := make([]client.Vtxo, 0, len(resp.SpendableVtxos))
	for _, vtxo := range resp.SpendableVtxos {
		spendable = append(spendable, vtxo.parse())
	}
	spent := make([]client.Vtxo, 0, len(resp.SpentVtxos))
	for _, vtxo := range resp.SpentVtxos {
		spent = append(spent, vtxo.parse())
	}

	return spendable, spent, nil
}

// GetEventStream opens the newline-delimited JSON event stream, each line
// holding one event record. The stream reconnects until the context is
// cancelled or the returned close function is called.
func (c *restClient) GetEventStream(
	ctx context.Context,
) (<-chan client.RoundEventChannel, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)
	eventsCh := make(chan client.RoundEventChannel)

	go func() {
		defer close(eventsCh)

		for {
			if err := c.readEventStream(streamCtx, eventsCh); err != nil {
				select {
				case <-streamCtx.Done():
					return
				default:
				}

				log.Warnf("event stream disconnected: %s, reconnecting...", err)

				select {
				case <-streamCtx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()

	return eventsCh, cancel, nil
}

func (c *restClient) readEventStream(
	ctx context.Context, eventsCh chan<- client.RoundEventChannel,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.serverURL+"/v1/events", nil,
	)
	if err != nil {
		return err
	}

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return err
	}
	// nolint:all
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &client.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024), maxEventSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		wrapper := eventWrapper{}
		if err := json.Unmarshal([]byte(line), &wrapper); err != nil {
			eventsCh <- client.RoundEventChannel{
				Err: &client.ProtocolError{
					Message: fmt.Sprintf("invalid event record: %s", err),
				},
			}
			continue
		}

		event, err := wrapper.Result.parse()
		if err != nil {
			eventsCh <- client.RoundEventChannel{Err: err}
			continue
		}
		if event == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case eventsCh <- client.RoundEventChannel{Event: event}:
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return io.EOF
}

func (c *restClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.serverURL+path, nil,
	)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *restClient) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(buf),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *restClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &client.ProviderError{Message: err.Error()}
	}
	// nolint:all
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &client.ProviderError{Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return &client.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &client.ProtocolError{
			Message: fmt.Sprintf("invalid response body: %s", err),
		}
	}

	return nil
}
