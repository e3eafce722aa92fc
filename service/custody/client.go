package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/saypay/service/metrics"
	"github.com/shopspring/decimal"
)

// defaultPollInterval is how often Wait polls the provider for status.
const defaultPollInterval = 2 * time.Second

// Client is a Provider backed by the custody provider's REST API.
type Client struct {
	baseURL      string
	apiKey       string
	apiSecret    string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the settlement polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.pollInterval = d }
}

// WithMetrics attaches a metrics collector. If nil, no metrics are recorded.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a custody API client.
func NewClient(baseURL, apiKey, apiSecret string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ImportWallet implements Provider.
func (c *Client) ImportWallet(ctx context.Context, credential []byte, network string) (Wallet, error) {
	body := map[string]any{
		"network_id": network,
		"data":       json.RawMessage(credential),
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/wallets/import", body, &resp); err != nil {
		return nil, fmt.Errorf("import wallet: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("import wallet: provider returned empty wallet id")
	}

	c.logger.DebugContext(ctx, "imported wallet", "wallet_id", resp.ID, "network", network)
	return &apiWallet{client: c, id: resp.ID, network: network}, nil
}

// apiWallet is a Wallet handle bound to a Client.
type apiWallet struct {
	client  *Client
	id      string
	network string
}

func (w *apiWallet) ID() string { return w.id }

func (w *apiWallet) DefaultAddress(ctx context.Context) (string, error) {
	var resp struct {
		AddressID string `json:"address_id"`
	}
	path := fmt.Sprintf("/v1/wallets/%s/default-address", w.id)
	if err := w.client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("default address: %w", err)
	}
	if resp.AddressID == "" {
		return "", fmt.Errorf("default address: provider returned empty address")
	}
	return resp.AddressID, nil
}

func (w *apiWallet) CreateTransfer(ctx context.Context, req TransferRequest) (Pending, error) {
	body := map[string]any{
		"amount":      req.Amount.String(),
		"asset_id":    req.AssetID,
		"destination": req.Destination,
		"gasless":     req.Gasless,
	}

	var resp operationResponse
	path := fmt.Sprintf("/v1/wallets/%s/transfers", w.id)
	if err := w.client.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	w.client.logger.DebugContext(ctx, "created transfer",
		"wallet_id", w.id,
		"transfer_id", resp.ID,
		"asset", req.AssetID,
		"gasless", req.Gasless,
	)
	return &pendingOp{client: w.client, kind: "transfers", walletID: w.id, opID: resp.ID}, nil
}

func (w *apiWallet) CreateTrade(ctx context.Context, req TradeRequest) (Pending, error) {
	body := map[string]any{
		"amount":        req.Amount.String(),
		"from_asset_id": req.FromAssetID,
		"to_asset_id":   req.ToAssetID,
	}

	var resp operationResponse
	path := fmt.Sprintf("/v1/wallets/%s/trades", w.id)
	if err := w.client.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	w.client.logger.DebugContext(ctx, "created trade",
		"wallet_id", w.id,
		"trade_id", resp.ID,
		"from_asset", req.FromAssetID,
		"to_asset", req.ToAssetID,
	)
	return &pendingOp{client: w.client, kind: "trades", walletID: w.id, opID: resp.ID}, nil
}

// operationResponse is the provider's representation of a transfer or trade.
type operationResponse struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	TransactionHash string `json:"transaction_hash"`
	ToAmount        string `json:"to_amount"`
}

// pendingOp polls the provider until the operation settles.
type pendingOp struct {
	client   *Client
	kind     string // "transfers" or "trades"
	walletID string
	opID     string
}

func (p *pendingOp) ID() string { return p.opID }

func (p *pendingOp) Wait(ctx context.Context) (*Receipt, error) {
	path := fmt.Sprintf("/v1/wallets/%s/%s/%s", p.walletID, p.kind, p.opID)

	ticker := time.NewTicker(p.client.pollInterval)
	defer ticker.Stop()

	for {
		var resp operationResponse
		if err := p.client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("poll %s %s: %w", p.kind, p.opID, err)
		}

		if resp.Status.Terminal() {
			receipt := &Receipt{
				Status: resp.Status,
				ID:     resp.ID,
				TxHash: resp.TransactionHash,
			}
			if resp.ToAmount != "" {
				amount, err := decimal.NewFromString(resp.ToAmount)
				if err != nil {
					return nil, fmt.Errorf("parse to_amount %q: %w", resp.ToAmount, err)
				}
				receipt.ToAmount = amount
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do issues an authenticated JSON request against the provider API.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Secret", c.apiSecret)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil || (resp != nil && resp.StatusCode >= 400) {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordCustodyCall(method+" "+path, status, duration)
	}

	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
