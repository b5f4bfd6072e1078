// Package fetch performs the HTTP requests made by the pipeline: feed bodies,
// HTML documents, page metadata and readable article text.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MaxBodyBytes caps every response body read by the client.
const MaxBodyBytes = 5 << 20

// DefaultUserAgent is a browser-like agent; several sites refuse obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Accept headers used by the pipeline.
const (
	AcceptFeed = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.7"
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Error describes a failed fetch. Status is zero when no response was received.
type Error struct {
	URL    string
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Client fetches remote documents with a fixed User-Agent and a capped body size.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a Client. A nil httpClient uses a fresh http.Client; per-request
// timeouts come from the context.
func NewClient(userAgent string, httpClient *http.Client) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, userAgent: userAgent}
}

// Get fetches rawURL within timeout and returns at most MaxBodyBytes of the body.
// Non-2xx responses are returned as *Error.
func (c *Client) Get(ctx context.Context, rawURL, accept string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, Status: resp.StatusCode, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, &Error{URL: rawURL, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}
	return body, nil
}

// GetDocument fetches rawURL and parses it as HTML.
func (c *Client) GetDocument(ctx context.Context, rawURL string, timeout time.Duration) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL, AcceptHTML, timeout)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}
	return doc, nil
}

// IsHTML reports whether body looks like an HTML document rather than a feed.
func IsHTML(body []byte) bool {
	head := bytes.TrimSpace(body)
	if len(head) > 64 {
		head = head[:64]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

// PageImage returns the og:image or twitter:image of the page, resolved against pageURL.
// An empty string means the page declares no image.
func (c *Client) PageImage(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	doc, err := c.GetDocument(ctx, pageURL, timeout)
	if err != nil {
		return "", err
	}
	return ResolveURL(pageURL, MetaImage(doc)), nil
}

// MetaImage returns the page's og:image, falling back to twitter:image.
func MetaImage(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ExtractTitle returns the document title, falling back to og:title and the first h1.
func ExtractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// ResolveURL resolves ref against base. Absolute refs pass through; unresolvable
// input returns ref unchanged.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
