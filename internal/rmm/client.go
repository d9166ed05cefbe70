// Package rmm is the gateway to the Tactical RMM API. List and detail
// failures degrade to empty results so a flaky remote never aborts a sync
// run; only updates surface errors, and callers log and continue.
package rmm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// authHeader carries the API token on every request.
const authHeader = "X-API-KEY"

// Client wraps the remote store endpoints. The base URL and token are
// explicit constructor state, never package globals.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a gateway for the given API domain and access token.
func NewClient(domain, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(domain, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}
}

// ListScripts enumerates all scripts, including hidden ones. Failures are
// logged and yield an empty result.
func (c *Client) ListScripts(ctx context.Context) []Definition {
	return c.list(ctx, "/scripts/?showHiddenScripts=true")
}

// ListSnippets enumerates all snippets. A snippet record is already the full
// payload; there is no separate download step.
func (c *Client) ListSnippets(ctx context.Context) []Definition {
	return c.list(ctx, "/scripts/snippets/")
}

func (c *Client) list(ctx context.Context, path string) []Definition {
	body, ok := c.get(ctx, path)
	if !ok {
		return nil
	}

	var payloads []Payload
	if err := json.Unmarshal(body, &payloads); err != nil {
		c.logger.Error("failed to decode list response", "path", path, "error", err)
		return nil
	}

	defs := make([]Definition, 0, len(payloads))
	for _, p := range payloads {
		defs = append(defs, DefinitionFromPayload(p))
	}
	return defs
}

// Download fetches the full detail payload for a script. Failures are logged
// and reported via the boolean.
func (c *Client) Download(ctx context.Context, id int64) (Payload, bool) {
	body, ok := c.get(ctx, fmt.Sprintf("/scripts/%d/download/?with_snippets=false", id))
	if !ok {
		return nil, false
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		c.logger.Error("failed to decode script detail", "id", id, "error", err)
		return nil, false
	}
	return p, true
}

// UpdateScript pushes an updated payload for a script. Unlike list and
// detail, update failures are returned so the reconciler can report the
// abandoned push.
func (c *Client) UpdateScript(ctx context.Context, id int64, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode update payload: %w", err)
	}

	url := fmt.Sprintf("%s/scripts/%d/", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("update request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("update returned %s: %s", resp.Status, strings.TrimSpace(string(text)))
	}

	c.logger.Info("script updated", "id", id, "status", resp.Status)
	return nil
}

// get performs a GET and returns the body on success. Non-2xx responses and
// transport failures are logged with status and reason; both degrade to a
// missing result.
func (c *Client) get(ctx context.Context, path string) ([]byte, bool) {
	url := c.baseURL + path
	c.logger.Debug("fetching", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("failed to build request", "url", url, "error", err)
		return nil, false
	}
	req.Header.Set(authHeader, c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Error("request failed", "url", url, "error", err)
		return nil, false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("failed to read response body", "url", url, "error", err)
		return nil, false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("unexpected status",
			"url", url,
			"status", resp.StatusCode,
			"reason", http.StatusText(resp.StatusCode))
		return nil, false
	}

	return body, true
}
