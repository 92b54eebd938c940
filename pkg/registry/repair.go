package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/viraltok/tokmint/pkg/ipfsurl"
)

// Report summarizes a repair pass.
type Report struct {
	Scanned int
	Updated int
	Failed  int
}

// FixImageURLs rewrites every stored image URL to its canonical gateway form.
// Records whose URL is already canonical or unrecognized are left alone.
// Per-record update failures are aggregated into the returned error.
func FixImageURLs(ctx context.Context, store Store, n *ipfsurl.Normalizer) (Report, error) {
	if n == nil {
		n = ipfsurl.New("")
	}
	records, err := store.List(ctx, 0)
	if err != nil {
		return Report{}, fmt.Errorf("list records: %w", err)
	}

	var (
		report Report
		errs   error
	)
	for _, r := range records {
		report.Scanned++
		if r.ImageURL == "" {
			continue
		}
		fixed := n.Normalize(r.ImageURL)
		if fixed == r.ImageURL {
			continue
		}
		if err := store.UpdateImageURL(ctx, r.Address, fixed); err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Address, err))
			continue
		}
		report.Updated++
	}
	return report, errs
}

// CheckResult is the outcome of checking one record's image.
type CheckResult struct {
	Address  string
	ImageURL string
	Valid    bool
	Updated  bool
}

// ImageChecker verifies that stored image URLs resolve and repairs them from
// token metadata when they do not.
type ImageChecker struct {
	http       *http.Client
	normalizer *ipfsurl.Normalizer
	log        zerolog.Logger
}

// NewImageChecker builds an ImageChecker. Nil arguments get defaults.
func NewImageChecker(client *http.Client, n *ipfsurl.Normalizer, log zerolog.Logger) *ImageChecker {
	if client == nil {
		client = http.DefaultClient
	}
	if n == nil {
		n = ipfsurl.New("")
	}
	return &ImageChecker{http: client, normalizer: n, log: log}
}

// Check HEADs the record's image. If it is unreachable, the image is read
// from the record's metadata document, normalized and stored.
func (c *ImageChecker) Check(ctx context.Context, store Store, address string) (CheckResult, error) {
	r, err := store.GetByAddress(ctx, address)
	if err != nil {
		return CheckResult{Address: address}, err
	}
	res := CheckResult{Address: address, ImageURL: r.ImageURL}

	if isHTTPS(r.ImageURL) && c.reachable(ctx, r.ImageURL) {
		res.Valid = true
		return res, nil
	}
	if !isHTTPS(r.MetadataURI) {
		return res, nil
	}

	image, err := c.metadataImage(ctx, r.MetadataURI)
	if err != nil {
		c.log.Warn().Str("address", address).Str("metadata_uri", r.MetadataURI).Err(err).Msg("metadata fetch failed")
		return res, nil
	}
	if !isHTTPS(image) {
		return res, nil
	}
	image = c.normalizer.Normalize(image)
	if err := store.UpdateImageURL(ctx, address, image); err != nil {
		return res, fmt.Errorf("update image url: %w", err)
	}
	c.log.Info().Str("address", address).Str("image_url", image).Msg("image url repaired")
	res.ImageURL = image
	res.Valid = true
	res.Updated = true
	return res, nil
}

// CheckAll runs Check over every record with at most limit checks in flight.
func (c *ImageChecker) CheckAll(ctx context.Context, store Store, limit int) ([]CheckResult, error) {
	records, err := store.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if limit <= 0 {
		limit = 4
	}

	var (
		mu      sync.Mutex
		results = make([]CheckResult, len(records))
		errs    error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range records {
		g.Go(func() error {
			res, err := c.Check(gctx, store, r.Address)
			results[i] = res
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Address, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errs
}

func (c *ImageChecker) reachable(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *ImageChecker) metadataImage(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("metadata status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var meta struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("decode metadata: %w", err)
	}
	return meta.Image, nil
}

func isHTTPS(u string) bool {
	return strings.HasPrefix(u, "https://")
}
