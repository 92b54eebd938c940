// Package remote talks to a token registry service over HTTP.
//
// Routes:
//
//	POST /api/save-token     store one token
//	GET  /api/tokens         every token, newest first
//	GET  /api/random-tokens  a few random tokens
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/viraltok/tokmint/pkg/registry"
)

// RandomPolicy is the retry policy for random reads.
type RandomPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultRandomPolicy waits min(1s*2^i, 5s) between three tries of up to 8s each.
func DefaultRandomPolicy() RandomPolicy {
	return RandomPolicy{
		MaxTries:        3,
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		AttemptTimeout:  8 * time.Second,
	}
}

// Client is a registry.Saver and registry.Lister over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	random  RandomPolicy
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRandomPolicy overrides the random read retry policy.
func WithRandomPolicy(p RandomPolicy) Option {
	return func(c *Client) { c.random = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		random:  DefaultRandomPolicy(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ registry.Saver  = (*Client)(nil)
	_ registry.Lister = (*Client)(nil)
)

type tokenDTO struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TiktokURL   string `json:"tiktokUrl"`
	TiktokID    string `json:"tiktokId,omitempty"`
	Creator     string `json:"creator"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
	ImageURL    string `json:"imageUrl,omitempty"`
	MetadataURI string `json:"metadataUri,omitempty"`
}

func toDTO(r *registry.Record) tokenDTO {
	return tokenDTO{
		Address:     r.Address,
		Name:        r.Name,
		Symbol:      r.Symbol,
		TiktokURL:   r.VideoURL,
		TiktokID:    r.VideoID,
		Creator:     r.Creator,
		Timestamp:   r.Timestamp,
		Signature:   r.Signature,
		ImageURL:    r.ImageURL,
		MetadataURI: r.MetadataURI,
	}
}

func (d tokenDTO) record() *registry.Record {
	return &registry.Record{
		Address:     d.Address,
		Name:        d.Name,
		Symbol:      d.Symbol,
		ImageURL:    d.ImageURL,
		MetadataURI: d.MetadataURI,
		Creator:     d.Creator,
		VideoURL:    d.TiktokURL,
		VideoID:     d.TiktokID,
		Signature:   d.Signature,
		Timestamp:   d.Timestamp,
	}
}

type tokensResponse struct {
	Tokens      []tokenDTO `json:"tokens"`
	Error       string     `json:"error"`
	UseMockData bool       `json:"useMockData"`
}

// StatusError is a non-2xx answer from the registry service.
type StatusError struct {
	Route      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Route, e.StatusCode, e.Body)
}

// Save posts the record to /api/save-token.
func (c *Client) Save(ctx context.Context, r *registry.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(toDTO(r))
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/api/save-token", payload)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// List fetches /api/tokens, newest first.
func (c *Client) List(ctx context.Context, limit int) ([]*registry.Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/tokens", nil)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	var resp tokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	out := records(resp.Tokens)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Random fetches /api/random-tokens with retry. The service picks how many
// it returns; at most n are kept.
func (c *Client) Random(ctx context.Context, n int) ([]*registry.Record, error) {
	if n <= 0 {
		return nil, registry.ErrInvalidInput
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.random.InitialInterval
	exp.MaxInterval = c.random.MaxInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0

	tries := c.random.MaxTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	op := func() (tokensResponse, error) {
		attempt++
		actx := ctx
		if c.random.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, c.random.AttemptTimeout)
			defer cancel()
		}
		body, err := c.do(actx, http.MethodGet, "/api/random-tokens", nil)
		if err != nil {
			return tokensResponse{}, err
		}
		var resp tokensResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return tokensResponse{}, backoff.Permanent(fmt.Errorf("decode tokens: %w", err))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug().
				Str("op", "random-tokens").
				Int("attempt", attempt).
				Dur("backoff", next).
				Err(err).
				Msg("registry retry")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("random tokens: %w", err)
	}
	if resp.Error != "" {
		c.log.Warn().Str("error", resp.Error).Bool("use_mock_data", resp.UseMockData).Msg("registry degraded")
	}
	out := records(resp.Tokens)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, route string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Route: route, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}
	return raw, nil
}

func records(in []tokenDTO) []*registry.Record {
	out := make([]*registry.Record, 0, len(in))
	for _, d := range in {
		out = append(out, d.record())
	}
	return out
}
