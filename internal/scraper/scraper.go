// Package scraper pulls the description text out of a job posting page.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"resume-matcher/internal/domain"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	DefaultTimeout   = 10 * time.Second

	minDescriptionRunes = 200
	maxBodyBytes        = 5 << 20
)

var descriptionSelectors = []string{
	`div[class*="job-description"]`,
	`div[class*="jobDescription"]`,
	`div[class*="description"]`,
	`div[id*="description"]`,
	`section[class*="description"]`,
	`div[data-testid*="description"]`,
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	stripChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;:!?()\-]`)
)

type Client struct {
	HTTPClient *http.Client
	UserAgent  string
}

func New(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
	}
}

// Scrape fetches rawURL and returns its cleaned description text. Every
// failure wraps domain.ErrFetch.
func (c *Client) Scrape(ctx context.Context, rawURL string) (string, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", domain.ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: unexpected status %d", domain.ErrFetch, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %w", domain.ErrFetch, err)
	}

	return cleanText(extractDescription(doc)), nil
}

// extractDescription returns the joined text of the first selector whose
// matches add up to more than minDescriptionRunes, else the whole page.
func extractDescription(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	for _, selector := range descriptionSelectors {
		var blocks []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := spacedText(s); text != "" {
				blocks = append(blocks, text)
			}
		})
		if joined := strings.Join(blocks, " "); len([]rune(joined)) > minDescriptionRunes {
			return joined
		}
	}
	return spacedText(doc.Selection)
}

// spacedText joins the trimmed text nodes under sel with single spaces so
// adjacent elements never run together.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				if text := strings.TrimSpace(child.Text()); text != "" {
					parts = append(parts, text)
				}
				return
			}
			walk(child)
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

func cleanText(text string) string {
	text = stripChars.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
