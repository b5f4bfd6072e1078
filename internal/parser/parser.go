package parser

import (
	"bufio"
	"bytes"
	"curator/internal/core"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// URL regex patterns
var (
	// Matches markdown links: [text](url)
	markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)

	// Matches raw URLs in text
	rawURLRegex = regexp.MustCompile(`https?://[^\s)]+`)
)

// Parser handles URL extraction, normalization and site-list files
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseMarkdownContent extracts URLs from markdown content string
// Handles both markdown links [text](url) and raw URLs
// Returns deduplicated list of URLs in document order
func (p *Parser) ParseMarkdownContent(content string) []string {
	var urls []string

	add := func(raw string) {
		if p.isValidURL(raw) {
			urls = append(urls, raw)
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()

		markdownMatches := markdownLinkRegex.FindAllStringSubmatch(line, -1)
		if len(markdownMatches) > 0 {
			for _, match := range markdownMatches {
				if len(match) >= 3 {
					add(match[2])
				}
			}
			continue
		}
		for _, rawURL := range rawURLRegex.FindAllString(line, -1) {
			add(rawURL)
		}
	}

	return p.DeduplicateURLs(urls)
}

// ValidateURL checks that a URL is absolute http(s) with a host
func (p *Parser) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL missing host")
	}

	return nil
}

// NormalizeURL removes tracking parameters and normalizes URL format
func (p *Parser) NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
		}
	}
	for _, param := range []string{"fbclid", "gclid", "msclkid", "ref", "source"} {
		query.Del(param)
	}
	parsed.RawQuery = query.Encode()

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Host = strings.ToLower(parsed.Host)

	if parsed.Path != "" && parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}

	return parsed.String()
}

// DeduplicateURLs removes duplicate URLs from a list
func (p *Parser) DeduplicateURLs(urls []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(urls))

	for _, u := range urls {
		normalized := p.NormalizeURL(u)
		if !seen[normalized] {
			seen[normalized] = true
			result = append(result, normalized)
		}
	}

	return result
}

// isValidURL performs basic validation without returning errors
func (p *Parser) isValidURL(rawURL string) bool {
	return p.ValidateURL(rawURL) == nil
}

// ParseSiteList reads "url|category" lines. Blank lines and lines starting with #
// are skipped; a missing category becomes core.DefaultCategory.
func (p *Parser) ParseSiteList(r io.Reader) ([]core.Source, error) {
	var sources []core.Source
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rawURL, category, _ := strings.Cut(line, "|")
		src, err := p.newSource(rawURL, category)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if seen[src.URL] {
			continue
		}
		seen[src.URL] = true
		sources = append(sources, src)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading site list: %w", err)
	}
	return sources, nil
}

type siteYAML struct {
	Sites []struct {
		URL      string `yaml:"url"`
		Category string `yaml:"category"`
	} `yaml:"sites"`
}

// ParseSiteYAML reads a document of the form:
//
//	sites:
//	  - url: https://example.com/feed
//	    category: Tech
func (p *Parser) ParseSiteYAML(data []byte) ([]core.Source, error) {
	var doc siteYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse site YAML: %w", err)
	}

	var sources []core.Source
	seen := make(map[string]bool)
	for i, s := range doc.Sites {
		src, err := p.newSource(s.URL, s.Category)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
		if seen[src.URL] {
			continue
		}
		seen[src.URL] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// ParseSiteFile reads a site list, choosing the format from the extension:
// .yaml/.yml, .md (links with the default category), anything else url|category lines.
func (p *Parser) ParseSiteFile(filePath string) ([]core.Source, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return p.ParseSiteYAML(content)
	case ".md", ".markdown":
		var sources []core.Source
		for _, u := range p.ParseMarkdownContent(string(content)) {
			sources = append(sources, core.Source{URL: u, Category: core.DefaultCategory})
		}
		return sources, nil
	default:
		return p.ParseSiteList(bytes.NewReader(content))
	}
}

func (p *Parser) newSource(rawURL, category string) (core.Source, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := p.ValidateURL(rawURL); err != nil {
		return core.Source{}, fmt.Errorf("invalid site URL %q: %w", rawURL, err)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = core.DefaultCategory
	}
	return core.Source{URL: rawURL, Category: category}, nil
}
