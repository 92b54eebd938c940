package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	json "github.com/goccy/go-json"
)

type signRequest struct {
	PublicKey string `json:"publicKey"`
	Message   string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// NewHTTPSigner returns a RemoteSigner backed by a signing service.
// The service receives {"publicKey","message"} with a base64 message and
// answers {"signature"} in base58. HTTP 403, or an error body mentioning a
// rejection, is reported as ErrUserRejected.
func NewHTTPSigner(endpoint string, pub solana.PublicKey, client *http.Client) RemoteSigner {
	if client == nil {
		client = http.DefaultClient
	}
	return NewRemoteSigner(pub, func(ctx context.Context, message []byte) ([]byte, error) {
		payload, err := json.Marshal(signRequest{
			PublicKey: pub.String(),
			Message:   base64.StdEncoding.EncodeToString(message),
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return nil, err
		}

		var out signResponse
		_ = json.Unmarshal(body, &out)
		if resp.StatusCode == http.StatusForbidden || strings.Contains(strings.ToLower(out.Error), "reject") {
			return nil, ErrUserRejected
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("signer status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if out.Signature == "" {
			return nil, fmt.Errorf("signer returned no signature")
		}
		sig, err := solana.SignatureFromBase58(out.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode signature: %w", err)
		}
		return sig[:], nil
	})
}
