package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// MaxPageLinks bounds the outbound links collected from one page.
const MaxPageLinks = 40

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Page is the readable form of a fetched article.
type Page struct {
	URL   string
	Title string
	Text  string
	Links []Link
}

// Link is an outbound link with the text around it.
type Link struct {
	URL     string `json:"url"`
	Text    string `json:"text"`
	Context string `json:"context"`
}

// Readable fetches pageURL and extracts its main text with go-readability, plus the
// outbound links of the original document.
func (c *Client) Readable(ctx context.Context, pageURL string, timeout time.Duration) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}

	body, err := c.Get(ctx, pageURL, AcceptHTML, timeout)
	if err != nil {
		return nil, err
	}
	return ParseReadable(body, parsed)
}

// ParseReadable extracts title, text and links from an HTML body.
func ParseReadable(body []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	page := &Page{
		URL:   pageURL.String(),
		Title: ExtractTitle(doc),
		Links: ExtractLinks(doc, pageURL, MaxPageLinks),
	}

	rp := readability.NewParser()
	article, err := rp.Parse(bytes.NewReader(body), pageURL)
	if err == nil {
		if t := normalizeText(article.Title); t != "" {
			page.Title = t
		}
		page.Text = htmlText(article.Content)
	}
	if page.Text == "" {
		page.Text = fallbackText(doc)
	}
	return page, nil
}

// ExtractLinks collects distinct http(s) links that point away from the page itself.
func ExtractLinks(doc *goquery.Document, pageURL *url.URL, limit int) []Link {
	self := stripFragment(pageURL)
	seen := map[string]bool{self: true}
	var links []Link

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(links) >= limit {
			return false
		}
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := pageURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		key := stripFragment(abs)
		if seen[key] {
			return true
		}
		seen[key] = true

		links = append(links, Link{
			URL:     key,
			Text:    normalizeText(s.Text()),
			Context: truncate(normalizeText(s.Parent().Text()), 200),
		})
		return true
	})
	return links
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})
	if b.Len() == 0 {
		return normalizeText(doc.Text())
	}
	return strings.TrimSpace(b.String())
}

// fallbackText strips boilerplate and collects paragraph text from the whole body.
func fallbackText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()
	var b strings.Builder
	body.Find("p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeText(s.Text()); text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})
	return strings.TrimSpace(b.String())
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
