// Package fetch retrieves listing pages and PDF documents over HTTP.
// Listing pages and documents have separate timeouts; every failure is
// returned (and logged) per URL so callers can carry on with the rest.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	DefaultListingTimeout = 15 * time.Second
	DefaultPDFTimeout     = 10 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	DefaultMaxListingSize = 20 << 20 // 20MB
	DefaultMaxPDFSize     = 50 << 20 // 50MB
)

// ErrTooLarge is returned when a response body exceeds the configured cap.
var ErrTooLarge = errors.New("response body too large")

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	UserAgent      string
	ListingTimeout time.Duration
	PDFTimeout     time.Duration
	MaxListingSize int64
	MaxPDFSize     int64
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client fetches remote bytes with a realistic user agent.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	listingTimeout time.Duration
	pdfTimeout     time.Duration
	maxListingSize int64
	maxPDFSize     int64
	logger         *slog.Logger
}

// New creates a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		httpClient:     opts.HTTPClient,
		userAgent:      opts.UserAgent,
		listingTimeout: opts.ListingTimeout,
		pdfTimeout:     opts.PDFTimeout,
		maxListingSize: opts.MaxListingSize,
		maxPDFSize:     opts.MaxPDFSize,
		logger:         opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.listingTimeout <= 0 {
		c.listingTimeout = DefaultListingTimeout
	}
	if c.pdfTimeout <= 0 {
		c.pdfTimeout = DefaultPDFTimeout
	}
	if c.maxListingSize <= 0 {
		c.maxListingSize = DefaultMaxListingSize
	}
	if c.maxPDFSize <= 0 {
		c.maxPDFSize = DefaultMaxPDFSize
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// FetchText retrieves a listing page and returns its body decoded to UTF-8
// according to the response Content-Type (or the document's meta charset).
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	var text string
	err := c.get(ctx, url, c.listingTimeout, "text/html,application/xhtml+xml", func(resp *http.Response) error {
		raw, err := readLimited(resp.Body, c.maxListingSize)
		if err != nil {
			return err
		}
		r, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
		if err != nil {
			return fmt.Errorf("detecting charset: %w", err)
		}
		body, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
		text = string(body)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// FetchBinary retrieves a document (typically a PDF) as raw bytes.
func (c *Client) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := c.get(ctx, url, c.pdfTimeout, "application/pdf,*/*", func(resp *http.Response) error {
		body, err := readLimited(resp.Body, c.maxPDFSize)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, url string, timeout time.Duration, accept string, read func(*http.Response) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", accept)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return read(resp)
	}()
	if err != nil {
		c.logger.Warn("fetch failed", "url", url, "error", err)
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	return nil
}

// readLimited reads the whole body, failing with ErrTooLarge when it holds
// more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, nil
}
