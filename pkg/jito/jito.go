// Package jito submits signed transactions through the Jito block engine
// instead of a plain RPC node.
//
// For more information, see: https://github.com/jito-labs/jito-go-rpc
package jito

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	json "github.com/goccy/go-json"
	jitorpc "github.com/jito-labs/jito-go-rpc"
	"github.com/rs/zerolog"
)

// MainnetBlockEngines contains the public Jito mainnet endpoints.
// Rotating between them helps avoid per-region rate limits.
var MainnetBlockEngines = []string{
	"https://mainnet.block-engine.jito.wtf/api/v1",
	"https://amsterdam.mainnet.block-engine.jito.wtf/api/v1",
	"https://frankfurt.mainnet.block-engine.jito.wtf/api/v1",
	"https://ny.mainnet.block-engine.jito.wtf/api/v1",
	"https://tokyo.mainnet.block-engine.jito.wtf/api/v1",
}

// bundleAPI is the subset of the jito json-rpc client used here.
type bundleAPI interface {
	SendBundle(params [][]string) ([]byte, error)
}

// Client rotates over block engine endpoints with retry on rate limiting.
type Client struct {
	endpoints    []string
	uuid         string
	currentIndex uint32
	maxRetries   int
	retryDelay   time.Duration
	log          zerolog.Logger

	dial func(endpoint, uuid string) bundleAPI
}

// NewClient creates a client for the given endpoints. An empty list uses
// MainnetBlockEngines. uuid is optional.
func NewClient(endpoints []string, uuid string) *Client {
	if len(endpoints) == 0 {
		endpoints = MainnetBlockEngines
	}
	return &Client{
		endpoints:  endpoints,
		uuid:       uuid,
		maxRetries: len(endpoints) + 2,
		retryDelay: 100 * time.Millisecond,
		log:        zerolog.Nop(),
		dial: func(endpoint, uuid string) bundleAPI {
			return jitoAdapter{jitorpc.NewJitoJsonRpcClient(endpoint, uuid)}
		},
	}
}

// WithRetries configures the number of retries and delay between retries.
func (c *Client) WithRetries(maxRetries int, retryDelay time.Duration) *Client {
	c.maxRetries = maxRetries
	c.retryDelay = retryDelay
	return c
}

// WithLogger sets the logger used for retry diagnostics.
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log
	return c
}

func (c *Client) next() (string, bundleAPI) {
	idx := atomic.AddUint32(&c.currentIndex, 1)
	endpoint := c.endpoints[int(idx)%len(c.endpoints)]
	return endpoint, c.dial(endpoint, c.uuid)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "congested") ||
		strings.Contains(errStr, "429")
}

// SendResult contains the result of sending a transaction via Jito.
type SendResult struct {
	Signature solana.Signature
	BundleID  string
}

// SendTransaction sends one fully signed transaction as a single-entry bundle.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	res, err := c.SendTransactionWithBundleID(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	return res.Signature, nil
}

// SendTransactionWithBundleID sends a transaction and returns both the fee
// payer signature and the bundle id.
func (c *Client) SendTransactionWithBundleID(ctx context.Context, tx *solana.Transaction) (SendResult, error) {
	if tx == nil || len(tx.Signatures) == 0 {
		return SendResult{}, fmt.Errorf("transaction is not signed")
	}
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal transaction: %w", err)
	}
	params := [][]string{{base64.StdEncoding.EncodeToString(txBytes)}}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return SendResult{}, err
		}
		endpoint, client := c.next()
		rawResp, err := client.SendBundle(params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				c.log.Debug().Str("endpoint", endpoint).Int("attempt", i+1).Err(err).Msg("jito rate limited")
				select {
				case <-ctx.Done():
					return SendResult{}, ctx.Err()
				case <-time.After(c.retryDelay):
				}
				continue
			}
			return SendResult{}, fmt.Errorf("jito send transaction: %w", err)
		}

		var bundleID string
		if err = json.Unmarshal(rawResp, &bundleID); err != nil {
			return SendResult{}, fmt.Errorf("unmarshal bundle response: %w", err)
		}
		return SendResult{Signature: tx.Signatures[0], BundleID: bundleID}, nil
	}
	return SendResult{}, fmt.Errorf("jito send transaction failed after %d retries: %w", c.maxRetries, lastErr)
}

type jitoAdapter struct {
	c *jitorpc.JitoJsonRpcClient
}

func (a jitoAdapter) SendBundle(params [][]string) ([]byte, error) {
	raw, err := a.c.SendBundle(params)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}
