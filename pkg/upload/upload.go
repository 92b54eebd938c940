package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/viraltok/tokmint/pkg/config"
	"github.com/viraltok/tokmint/pkg/ipfsurl"
	"github.com/viraltok/tokmint/pkg/types"
)

// Backend is one upload provider, tried in declaration order.
type Backend struct {
	Name     string
	Endpoint string
	Headers  map[string]string
}

// Policy is the retry policy applied to every backend.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultPolicy makes up to four tries per backend, waiting 1s then doubling up to 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        4,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
		AttemptTimeout:  30 * time.Second,
	}
}

// Request is an image plus the metadata fields stored next to it.
type Request struct {
	Image       []byte
	FileName    string
	ContentType string

	Name        string
	Symbol      string
	Description string
	Twitter     string
	Telegram    string
	Website     string
	// HideName sends showName=false.
	HideName bool
}

// Metadata is the JSON document a metadata URI resolves to.
type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ShowName    bool   `json:"showName"`
	CreatedOn   string `json:"createdOn,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Result is an uploaded asset: a metadata URI the trade API can resolve and the image URL.
type Result struct {
	MetadataURI string
	ImageURL    string
	Backend     string
	Metadata    Metadata
}

type response struct {
	Success     *bool    `json:"success"`
	MetadataURI string   `json:"metadataUri"`
	Metadata    Metadata `json:"metadata"`
	ImageURL    string   `json:"imageUrl"`
	Image       string   `json:"image"`
	Error       string   `json:"error"`
}

// Client uploads to a prioritized list of backends with one retry policy.
type Client struct {
	backends   []Backend
	policy     Policy
	http       *http.Client
	normalizer *ipfsurl.Normalizer
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithNormalizer sets the URL normalizer.
func WithNormalizer(n *ipfsurl.Normalizer) Option {
	return func(c *Client) { c.normalizer = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient builds a Client for the given backends.
func NewClient(backends []Backend, opts ...Option) *Client {
	c := &Client{
		backends:   backends,
		policy:     DefaultPolicy(),
		http:       &http.Client{},
		normalizer: ipfsurl.New(ipfsurl.DefaultGateway),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig maps UploadConfig onto a Client.
func NewClientFromConfig(cfg config.UploadConfig, opts ...Option) *Client {
	backends := make([]Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, Backend{Name: b.Name, Endpoint: b.Endpoint, Headers: b.Headers})
	}
	policy := DefaultPolicy()
	if cfg.MaxTries > 0 {
		policy.MaxTries = cfg.MaxTries
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.AttemptTimeout > 0 {
		policy.AttemptTimeout = cfg.AttemptTimeout
	}
	base := []Option{WithPolicy(policy), WithNormalizer(ipfsurl.New(cfg.Gateway))}
	return NewClient(backends, append(base, opts...)...)
}

// Upload stores the image and metadata on the first backend that succeeds.
// Backends after the successful one are never contacted. When all fail the
// error is a *types.UploadError naming the last backend.
func (c *Client) Upload(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 {
		return nil, types.NewValidationError("image", "is required")
	}
	if len(c.backends) == 0 {
		return nil, &types.UploadError{Err: errors.New("no upload backends configured")}
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, fmt.Errorf("encode upload form: %w", err)
	}

	var (
		errs     error
		last     string
		attempts int
	)
	for _, b := range c.backends {
		last = b.Name
		attempts++
		res, err := c.uploadTo(ctx, b, body, contentType)
		if err == nil {
			c.log.Info().Str("backend", b.Name).Str("metadata_uri", res.MetadataURI).Msg("upload complete")
			return res, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", b.Name, err))
		c.log.Warn().Str("backend", b.Name).Err(err).Msg("upload backend failed")
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &types.UploadError{
		Backend:  last,
		Attempts: attempts,
		Err:      errs,
	}
}

func (c *Client) uploadTo(ctx context.Context, b Backend, body []byte, contentType string) (*Result, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.policy.InitialInterval
	exp.MaxInterval = c.policy.MaxInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0

	tries := c.policy.MaxTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	op := func() (*Result, error) {
		attempt++
		return c.attempt(ctx, b, body, contentType)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug().
				Str("op", "upload").
				Str("backend", b.Name).
				Int("attempt", attempt).
				Dur("backoff", next).
				Err(err).
				Msg("upload retry")
		}),
	)
}

// attempt performs one POST. Transport errors, 5xx and 429 are retryable;
// everything else is permanent for this backend.
func (c *Client) attempt(ctx context.Context, b Backend, body []byte, contentType string) (*Result, error) {
	if c.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range b.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed response: %w", err))
	}
	if parsed.Success != nil && !*parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, backoff.Permanent(fmt.Errorf("incomplete response from %s: %s", b.Name, msg))
	}
	if parsed.MetadataURI == "" {
		return nil, backoff.Permanent(fmt.Errorf("incomplete response from %s: missing metadataUri", b.Name))
	}

	return &Result{
		MetadataURI: c.normalizer.Normalize(parsed.MetadataURI),
		ImageURL:    c.normalizer.Normalize(pickImage(parsed)),
		Backend:     b.Name,
		Metadata:    parsed.Metadata,
	}, nil
}

// pickImage prefers metadata.image, then imageUrl, then image.
func pickImage(r response) string {
	switch {
	case r.Metadata.Image != "":
		return r.Metadata.Image
	case r.ImageURL != "":
		return r.ImageURL
	default:
		return r.Image
	}
}

func encodeForm(req Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := req.FileName
	if name == "" {
		name = "image.png"
	}
	ct := req.ContentType
	if ct == "" {
		ct = http.DetectContentType(req.Image)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}

	showName := "true"
	if req.HideName {
		showName = "false"
	}
	fields := []struct{ k, v string }{
		{"name", req.Name},
		{"symbol", req.Symbol},
		{"description", req.Description},
		{"twitter", req.Twitter},
		{"telegram", req.Telegram},
		{"website", req.Website},
		{"showName", showName},
	}
	for _, f := range fields {
		if err := w.WriteField(f.k, f.v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
