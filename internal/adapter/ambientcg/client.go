// Package ambientcg is an HTTP client for the ambientCG texture library.
package ambientcg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
	"github.com/vertextoedge/texture-cache/internal/util/ratelimiter"
)

const archiveFormat = "PNG"

// ClientConfig contains client configuration
type ClientConfig struct {
	BaseURL             string
	UserAgent           string
	Thumbnails          int           // thumbnail size requested in listings
	Sort                string        // listing sort order
	ListingRateInterval time.Duration // minimum spacing between listing requests
	DownloadTimeout     time.Duration // 0 means no timeout
	BufferSize          int
}

// DefaultClientConfig returns the settings used against the public site
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:             "https://ambientcg.com",
		Thumbnails:          200,
		Sort:                "popular",
		ListingRateInterval: time.Second,
		BufferSize:          64 * 1024,
	}
}

// Client talks to the asset library website
type Client struct {
	cfg            ClientConfig
	httpClient     *http.Client
	downloadClient *http.Client
	listingLimiter *ratelimiter.Limiter
	logger         *zap.Logger
}

var (
	_ port.ArchiveSource   = (*Client)(nil)
	_ port.ListingSource   = (*Client)(nil)
	_ port.ThumbnailSource = (*Client)(nil)
)

// StatusError reports a non-success HTTP response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// NewClient creates a new client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	defaults := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Thumbnails <= 0 {
		cfg.Thumbnails = defaults.Thumbnails
	}
	if cfg.Sort == "" {
		cfg.Sort = defaults.Sort
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	downloadTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     120 * time.Second,

		WriteBufferSize: cfg.BufferSize,
		ReadBufferSize:  cfg.BufferSize,

		ForceAttemptHTTP2: true,

		// Archives are already compressed
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		downloadClient: &http.Client{
			Transport: downloadTransport,
			Timeout:   cfg.DownloadTimeout,
		},
		listingLimiter: ratelimiter.New(cfg.ListingRateInterval),
		logger:         logger.Named("ambientcg"),
	}
}

// BaseURL returns the site root
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// ArchiveURL returns {base}/get?file={id}_{res}-PNG.zip
func (c *Client) ArchiveURL(key domain.AssetKey) string {
	file := fmt.Sprintf("%s-%s.zip", key.BaseName(), archiveFormat)
	return c.cfg.BaseURL + "/get?file=" + url.QueryEscape(file)
}

// ListingURL returns the asset-list fragment URL for a query page
func (c *Client) ListingURL(query string, offset, count int) string {
	var b strings.Builder
	b.WriteString(c.cfg.BaseURL)
	b.WriteString("/hx/asset-list?id=&childrenOf=&variationsOf=&parentsOf=")
	b.WriteString("&q=" + url.QueryEscape(query))
	b.WriteString("&colorMode=")
	b.WriteString("&thumbnails=" + strconv.Itoa(c.cfg.Thumbnails))
	b.WriteString("&sort=" + url.QueryEscape(c.cfg.Sort))
	if offset > 0 {
		b.WriteString("&offset=" + strconv.Itoa(offset))
	}
	if count > 0 {
		b.WriteString("&limit=" + strconv.Itoa(count))
	}
	return b.String()
}

func (c *Client) newRequest(ctx context.Context, urlStr string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return req, nil
}

// get performs a GET and returns the response for any 2xx status
func (c *Client) get(ctx context.Context, client *http.Client, op, urlStr string) (*http.Response, error) {
	req, err := c.newRequest(ctx, urlStr)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, domain.NewNetworkError(op, &StatusError{URL: urlStr, StatusCode: resp.StatusCode})
	}
	return resp, nil
}

// OpenArchive starts the archive download for key.
// A missing or zero Content-Length is reported as -1.
func (c *Client) OpenArchive(ctx context.Context, key domain.AssetKey) (io.ReadCloser, int64, error) {
	urlStr := c.ArchiveURL(key)
	resp, err := c.get(ctx, c.downloadClient, "download", urlStr)
	if err != nil {
		return nil, 0, err
	}

	size := resp.ContentLength
	if size <= 0 {
		size = -1
	}

	c.logger.Debug("archive response",
		zap.String("key", key.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int64("content_length", size))

	return resp.Body, size, nil
}

// Search fetches one listing page. Markup that cannot be parsed yields an
// empty result; only transport failures are errors.
func (c *Client) Search(ctx context.Context, query string, offset, count int) ([]domain.AssetSummary, error) {
	if err := c.listingLimiter.Wait(ctx); err != nil {
		return nil, domain.NewNetworkError("listing", err)
	}

	urlStr := c.ListingURL(query, offset, count)
	resp, err := c.get(ctx, c.httpClient, "listing", urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	assets := ParseListing(resp.Body, c.cfg.BaseURL)
	if assets == nil {
		assets = []domain.AssetSummary{}
	}

	c.logger.Debug("listing fetched",
		zap.String("query", query),
		zap.Int("offset", offset),
		zap.Int("results", len(assets)))

	return assets, nil
}

// FetchThumbnail opens a thumbnail image
func (c *Client) FetchThumbnail(ctx context.Context, thumbnailURL string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, c.httpClient, "thumbnail", thumbnailURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
