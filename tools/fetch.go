// Package tools provides reference agentcore.Tool implementations an Agent
// can be configured with via WithTools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// FetchTool retrieves a URL and converts its body to text, markdown, or a
// trimmed HTML body fragment, so an agent can pull external content into its
// context without the model needing raw HTML.
type FetchTool struct {
	client      *http.Client
	maxBodySize int64
}

type fetchRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"`
}

type fetchResponse struct {
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	URL       string `json:"url,omitempty"`
	Format    string `json:"format,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewFetchTool creates a FetchTool that truncates bodies past maxBodySize
// bytes. maxBodySize <= 0 defaults to 5MB.
func NewFetchTool(maxBodySize int64) *FetchTool {
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &FetchTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBodySize: maxBodySize,
	}
}

func (t *FetchTool) Name() string        { return "fetch" }
func (t *FetchTool) Description() string { return "Fetch and process content from URLs" }

func (t *FetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch content from",
			},
			"format": map[string]any{
				"type":        "string",
				"description": "Output format: text (plain text), markdown (converted from HTML), or html (raw HTML body)",
				"enum":        []string{"text", "markdown", "html"},
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Optional timeout in seconds (max 120, default 30)",
			},
		},
		"required": []string{"url", "format"},
	}
}

// Execute implements agentcore.Tool.
func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req fetchRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return errorResponse("failed to parse fetch parameters: " + err.Error())
	}

	if req.URL == "" {
		return errorResponse("url parameter is required")
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return errorResponse("url must start with http:// or https://")
	}

	format := strings.ToLower(req.Format)
	if format != "text" && format != "markdown" && format != "html" {
		return errorResponse("format must be one of: text, markdown, html")
	}

	client := t.client
	reqCtx := ctx
	if req.Timeout > 0 {
		const maxTimeout = 120
		if req.Timeout > maxTimeout {
			req.Timeout = maxTimeout
		}
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
		defer cancel()
		// The per-request deadline replaces the client's default 30s timeout.
		c := *t.client
		c.Timeout = 0
		client = &c
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("User-Agent", "agentcore-fetch/1.0")

	resp, err := client.Do(httpReq)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to fetch url: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorResponse(fmt.Sprintf("request failed with status code: %d", resp.StatusCode))
	}

	// Read one byte past the limit so an oversized body is detected below.
	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize+1))
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to read response body: %v", err))
	}

	content := string(body)
	if !utf8.ValidString(content) {
		return errorResponse("response content is not valid utf-8")
	}

	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html")

	switch format {
	case "text":
		if isHTML {
			text, err := extractTextFromHTML(content)
			if err != nil {
				return errorResponse(fmt.Sprintf("failed to extract text from html: %v", err))
			}
			content = text
		}
	case "markdown":
		if isHTML {
			markdown, err := convertHTMLToMarkdown(content)
			if err != nil {
				return errorResponse(fmt.Sprintf("failed to convert html to markdown: %v", err))
			}
			content = markdown
		}
	case "html":
		if isHTML {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
			if err != nil {
				return errorResponse(fmt.Sprintf("failed to parse html: %v", err))
			}
			body, err := doc.Find("body").Html()
			if err != nil {
				return errorResponse(fmt.Sprintf("failed to extract body from html: %v", err))
			}
			if body == "" {
				return errorResponse("no body content found in html")
			}
			content = "<html>\n<body>\n" + body + "\n</body>\n</html>"
		}
	}

	truncated := false
	size := int64(len(content))
	if size > t.maxBodySize {
		content = content[:t.maxBodySize]
		content += fmt.Sprintf("\n\n[content truncated to %d bytes]", t.maxBodySize)
		truncated = true
	}

	return json.Marshal(fetchResponse{
		Success:   true,
		Content:   content,
		URL:       req.URL,
		Format:    format,
		Size:      size,
		Truncated: truncated,
	})
}

func errorResponse(msg string) (json.RawMessage, error) {
	return json.Marshal(fetchResponse{Success: false, Error: msg})
}

func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " "), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	return converter.ConvertString(html)
}
