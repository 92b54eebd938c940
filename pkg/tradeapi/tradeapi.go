package tradeapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/viraltok/tokmint/pkg/types"
)

// DefaultEndpoint is the local-transaction endpoint of the trade API.
const DefaultEndpoint = "https://pumpportal.fun/api/trade-local"

// Action is the trade direction.
type Action string

const (
	ActionCreate Action = "create"
	ActionBuy    Action = "buy"
	ActionSell   Action = "sell"
)

// TokenMetadata is required for ActionCreate.
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// Request describes the transaction to build. Amount is SOL when
// DenominatedInSol is set, tokens otherwise. Slippage is a percentage.
type Request struct {
	PublicKey        solana.PublicKey
	Action           Action
	Mint             solana.PublicKey
	TokenMetadata    *TokenMetadata
	DenominatedInSol bool
	Amount           decimal.Decimal
	Slippage         int
	PriorityFee      decimal.Decimal
	Pool             string
}

type wireRequest struct {
	PublicKey        string         `json:"publicKey"`
	Action           Action         `json:"action"`
	TokenMetadata    *TokenMetadata `json:"tokenMetadata,omitempty"`
	Mint             string         `json:"mint"`
	DenominatedInSol string         `json:"denominatedInSol"`
	Amount           float64        `json:"amount"`
	Slippage         int            `json:"slippage"`
	PriorityFee      float64        `json:"priorityFee"`
	Pool             string         `json:"pool"`
}

// Validate checks the request before it is sent.
func (r Request) Validate() error {
	if err := types.ValidatePublicKey("publicKey", r.PublicKey); err != nil {
		return err
	}
	if err := types.ValidatePublicKey("mint", r.Mint); err != nil {
		return err
	}
	switch r.Action {
	case ActionCreate:
		if r.TokenMetadata == nil || r.TokenMetadata.URI == "" {
			return types.NewValidationError("tokenMetadata", "uri is required for create")
		}
		if err := types.ValidateAmount("amount", r.Amount); err != nil {
			return err
		}
	case ActionBuy, ActionSell:
		if err := types.ValidatePositiveAmount("amount", r.Amount); err != nil {
			return err
		}
	default:
		return types.NewValidationError("action", fmt.Sprintf("unknown action %q", r.Action))
	}
	if err := types.ValidateSlippage(r.Slippage); err != nil {
		return err
	}
	return types.ValidateAmount("priorityFee", r.PriorityFee)
}

func (r Request) wire() wireRequest {
	denominated := "false"
	if r.DenominatedInSol {
		denominated = "true"
	}
	pool := r.Pool
	if pool == "" {
		pool = "pump"
	}
	return wireRequest{
		PublicKey:        r.PublicKey.String(),
		Action:           r.Action,
		TokenMetadata:    r.TokenMetadata,
		Mint:             r.Mint.String(),
		DenominatedInSol: denominated,
		Amount:           r.Amount.InexactFloat64(),
		Slippage:         r.Slippage,
		PriorityFee:      r.PriorityFee.InexactFloat64(),
		Pool:             pool,
	}
}

// Client requests unsigned transactions from the trade API.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      zerolog.Logger
}

// NewClient builds a Client. An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint string, timeout time.Duration, log zerolog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// WithAPIKey sets the api-key query parameter sent with each request.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// RequestTransaction asks for the unsigned transaction bytes. It makes exactly
// one call: a non-2xx response is a *types.TransactionRequestError carrying
// the body text.
func (c *Client) RequestTransaction(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req.wire())
	if err != nil {
		return nil, fmt.Errorf("encode trade request: %w", err)
	}

	endpoint := c.endpoint
	if c.apiKey != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "api-key=" + c.apiKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build trade request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Str("action", string(req.Action)).
		Str("mint", req.Mint.String()).
		Str("amount", req.Amount.String()).
		Msg("requesting transaction")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trade api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.TransactionRequestError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if len(body) == 0 {
		return nil, &types.TransactionRequestError{
			StatusCode: resp.StatusCode,
			Body:       "empty transaction returned",
		}
	}
	return body, nil
}
