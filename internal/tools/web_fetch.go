package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
)

const (
	webFetchTimeout      = 30 * time.Second
	webFetchMaxRedirects = 5
	defaultMaxChars      = 20_000
)

// WebFetchTool implements the web_fetch built-in: fetch a URL, extract
// readable content, and return a JSON envelope.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	client := &http.Client{
		Timeout: webFetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= webFetchMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", webFetchMaxRedirects)
			}
			return nil
		},
	}
	return &WebFetchTool{client: client}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL and extract its readable content" }
func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":         map[string]interface{}{"type": "string"},
			"extractMode": map[string]interface{}{"type": "string", "enum": []interface{}{"markdown", "text"}},
			"maxChars":    map[string]interface{}{"type": "integer", "minimum": float64(1)},
		},
		"required": []string{"url"},
	}
}

type webFetchEnvelope struct {
	URL       string `json:"url"`
	FinalURL  string `json:"finalUrl"`
	Status    int    `json:"status"`
	Extractor string `json:"extractor"`
	Truncated bool   `json:"truncated"`
	Length    int    `json:"length"`
	Text      string `json:"text"`
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	rawURL, _ := params["url"].(string)
	extractMode, _ := params["extractMode"].(string)
	if extractMode == "" {
		extractMode = "markdown"
	}
	maxChars := defaultMaxChars
	if mc, ok := numVal(params["maxChars"]); ok {
		maxChars = int(mc)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q, only http(s) allowed", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,text/plain;q=0.9,*/*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	text, extractor := extractContent(body, contentType, parsed.String(), extractMode)

	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	envelope := webFetchEnvelope{
		URL:       rawURL,
		FinalURL:  finalURL,
		Status:    resp.StatusCode,
		Extractor: extractor,
		Truncated: truncated,
		Length:    len(text),
		Text:      text,
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

var tagStripRe = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>|<[^>]+>`)

func extractContent(body []byte, contentType, pageURL, extractMode string) (text string, extractor string) {
	ct := strings.ToLower(contentType)

	switch {
	case strings.Contains(ct, "application/json") || strings.HasSuffix(ct, "+json"):
		var pretty interface{}
		if err := json.Unmarshal(body, &pretty); err == nil {
			if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				return string(out), "json"
			}
		}
		return string(body), "raw"

	case strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml"):
		html := string(body)
		base, _ := url.Parse(pageURL)

		if extractMode == "markdown" {
			if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
				if md, err := htmltomarkdown.ConvertString(art.Content, converter.WithDomain(base.String())); err == nil {
					return strings.TrimSpace(md), "readability+markdown"
				}
			}
			if md, err := htmltomarkdown.ConvertString(html, converter.WithDomain(base.String())); err == nil {
				return strings.TrimSpace(md), "markdown-fallback"
			}
		} else {
			if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.TextContent) != "" {
				return strings.TrimSpace(art.TextContent), "readability"
			}
		}
		// Regex strip fallback.
		stripped := tagStripRe.ReplaceAllString(html, " ")
		return strings.TrimSpace(stripped), "regex-strip"

	default:
		return string(body), "raw"
	}
}
