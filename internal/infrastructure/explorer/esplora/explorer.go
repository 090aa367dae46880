package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	tipHeightEndpoint = "/blocks/tip/height"

	defaultRequestsPerSecond = 10
	defaultBurst             = 5
)

type Option func(*explorer)

// WithRateLimit bounds the number of requests per second sent to the explorer.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *explorer) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithRetries(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(e *explorer) {
		e.client.RetryMax = retryMax
		e.client.RetryWaitMin = waitMin
		e.client.RetryWaitMax = waitMax
	}
}

type explorer struct {
	baseURL string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func NewExplorer(baseURL string, opts ...Option) (ports.Explorer, error) {
	if len(baseURL) == 0 {
		return nil, fmt.Errorf("esplora URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid esplora URL: %s", err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.Logger = nil

	svc := &explorer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(defaultRequestsPerSecond, defaultBurst),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (e *explorer) GetTipHeight(ctx context.Context) (int64, error) {
	body, err := e.get(ctx, tipHeightEndpoint)
	if err != nil {
		return 0, err
	}

	tip, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height %q: %s", body, err)
	}
	return tip, nil
}

func (e *explorer) GetUtxos(ctx context.Context, address string) ([]ports.ExplorerUtxo, error) {
	body, err := e.get(ctx, fmt.Sprintf("/address/%s/utxo", url.PathEscape(address)))
	if err != nil {
		return nil, err
	}

	var resp []utxoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse utxos of %s: %s", address, err)
	}

	utxos := make([]ports.ExplorerUtxo, 0, len(resp))
	for _, u := range resp {
		utxos = append(utxos, ports.ExplorerUtxo{
			Txid:   u.Txid,
			Vout:   u.Vout,
			Amount: u.Value,
			Status: u.Status.toPort(),
		})
	}
	return utxos, nil
}

func (e *explorer) GetTxs(ctx context.Context, address string) ([]ports.ExplorerTx, error) {
	body, err := e.get(ctx, fmt.Sprintf("/address/%s/txs", url.PathEscape(address)))
	if err != nil {
		return nil, err
	}

	var resp []txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse txs of %s: %s", address, err)
	}

	txs := make([]ports.ExplorerTx, 0, len(resp))
	for _, tx := range resp {
		outputs := make([]ports.TxOutput, 0, len(tx.Vout))
		for _, out := range tx.Vout {
			outputs = append(outputs, ports.TxOutput{
				Address: out.Address,
				Amount:  out.Value,
			})
		}
		txs = append(txs, ports.ExplorerTx{
			Txid:    tx.Txid,
			Outputs: outputs,
			Status:  tx.Status.toPort(),
		})
	}
	return txs, nil
}

func (e *explorer) GetOutspend(
	ctx context.Context, txid string, vout uint32,
) (*ports.Outspend, error) {
	body, err := e.get(ctx, fmt.Sprintf("/tx/%s/outspend/%d", txid, vout))
	if err != nil {
		return nil, err
	}

	var resp outspendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse outspend of %s:%d: %s", txid, vout, err)
	}

	outspend := &ports.Outspend{
		Spent:  resp.Spent,
		Txid:   resp.Txid,
		Vin:    resp.Vin,
		Status: resp.Status.toPort(),
	}
	if !resp.Spent {
		return outspend, nil
	}

	body, err = e.get(ctx, fmt.Sprintf("/tx/%s", resp.Txid))
	if err != nil {
		return nil, err
	}
	var tx txResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse tx %s: %s", resp.Txid, err)
	}
	if int(resp.Vin) >= len(tx.Vin) {
		return nil, fmt.Errorf("tx %s has no input %d", resp.Txid, resp.Vin)
	}
	outspend.Witness = tx.Vin[resp.Vin].Witness
	return outspend, nil
}

func (e *explorer) Broadcast(ctx context.Context, txHex string) (string, error) {
	body, err := e.do(ctx, http.MethodPost, "/tx", strings.NewReader(txHex))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (e *explorer) get(ctx context.Context, path string) ([]byte, error) {
	return e.do(ctx, http.MethodGet, path, nil)
}

func (e *explorer) do(
	ctx context.Context, method, path string, payload io.Reader,
) ([]byte, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := e.baseURL + path
	req, err := retryablehttp.NewRequest(method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := e.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	// nolint:errcheck
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"unexpected status code %d from %s: %s", resp.StatusCode, endpoint, body,
		)
	}

	log.Tracef("%s %s", method, endpoint)
	return body, nil
}

type statusResponse struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
	BlockTime   int64 `json:"block_time"`
}

func (s statusResponse) toPort() ports.TxStatus {
	return ports.TxStatus{
		Confirmed:   s.Confirmed,
		BlockHeight: s.BlockHeight,
		BlockTime:   s.BlockTime,
	}
}

type utxoResponse struct {
	Txid   string         `json:"txid"`
	Vout   uint32         `json:"vout"`
	Value  uint64         `json:"value"`
	Status statusResponse `json:"status"`
}

type outspendResponse struct {
	Spent  bool           `json:"spent"`
	Txid   string         `json:"txid"`
	Vin    uint32         `json:"vin"`
	Status statusResponse `json:"status"`
}

type txResponse struct {
	Txid string `json:"txid"`
	Vin  []struct {
		Witness []string `json:"witness"`
	} `json:"vin"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Value   uint64 `json:"value"`
	} `json:"vout"`
	Status statusResponse `json:"status"`
}
