// Package render talks to the PlantUML server over its GET URL form:
// {base}/{png|svg}/{encoded}.
package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/umldraft/umlbot/internal/config"
	"github.com/umldraft/umlbot/internal/plantuml"
)

// ErrRenderFailed wraps every way the render call can go wrong: network,
// status, or an unexpected content type. Callers keep the previous image.
var ErrRenderFailed = errors.New("render failed")

type Result struct {
	ImageBase64 string
	ImageURL    string
	ContentType string
}

type Client struct {
	httpClient  *http.Client
	urlTemplate string
	serverURL   string
	format      string
}

func NewClient(cfg config.PlantUMLConfig) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		urlTemplate: cfg.URLTemplate,
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		format:      cfg.Format,
	}
}

// Render encodes the markup, fetches the image and returns it base64
// encoded together with the direct URL.
func (c *Client) Render(ctx context.Context, code string) (*Result, error) {
	encoded, err := plantuml.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	imageURL := c.ImageURL(encoded)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server returned %s", ErrRenderFailed, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrRenderFailed, contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRenderFailed, err)
	}

	return &Result{
		ImageBase64: base64.StdEncoding.EncodeToString(body),
		ImageURL:    imageURL,
		ContentType: contentType,
	}, nil
}

// ImageURL builds the render URL for already-encoded markup. A configured
// template with {encoded} (and optionally {format}) wins over the base URL
// form.
func (c *Client) ImageURL(encoded string) string {
	if strings.Contains(c.urlTemplate, "{encoded}") {
		url := strings.ReplaceAll(c.urlTemplate, "{format}", c.format)
		return strings.ReplaceAll(url, "{encoded}", encoded)
	}
	return fmt.Sprintf("%s/%s/%s", c.serverURL, c.format, encoded)
}
