// Package aurweb is a minimal client for the AUR RPC v5 interface. The
// classifier uses it to compare installed versions against the community
// repository, and the source-build backend uses it to locate snapshot
// tarballs.
package aurweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public AUR endpoint.
const DefaultBaseURL = "https://aur.archlinux.org"

// PackageInfo is the subset of the RPC info result pacrec consumes.
type PackageInfo struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`

	// URLPath is the snapshot tarball path relative to the AUR host.
	URLPath string `json:"URLPath"`
}

// infoResponse is the RPC envelope for type=info queries.
type infoResponse struct {
	ResultCount int           `json:"resultcount"`
	Results     []PackageInfo `json:"results"`
	Type        string        `json:"type"`
	Error       string        `json:"error,omitempty"`
}

// Client queries the AUR RPC interface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL. An empty base URL
// selects the public AUR.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Info returns the RPC info record for a package, or nil when the package is
// unknown to the AUR.
func (c *Client) Info(ctx context.Context, name string) (*PackageInfo, error) {
	endpoint := fmt.Sprintf("%s/rpc/?v=5&type=info&arg=%s", c.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create AUR request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("AUR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AUR request failed: unexpected status %d", resp.StatusCode)
	}

	var parsed infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode AUR response: %w", err)
	}
	if parsed.Type == "error" {
		return nil, fmt.Errorf("AUR rpc error: %s", parsed.Error)
	}
	if parsed.ResultCount < 1 {
		return nil, nil
	}

	info := parsed.Results[0]
	info.Name = strings.TrimSpace(info.Name)
	info.URLPath = strings.TrimSpace(info.URLPath)
	return &info, nil
}

// Version implements engine.CommunityRepo. The epoch prefix is stripped the
// same way pacman's own Version output is normalized.
func (c *Client) Version(ctx context.Context, name string) (string, error) {
	info, err := c.Info(ctx, name)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	version := info.Version
	if idx := strings.LastIndex(version, ":"); idx >= 0 {
		version = version[idx+1:]
	}
	return strings.TrimSpace(version), nil
}

// Snapshot downloads the snapshot tarball for a package into w.
func (c *Client) Snapshot(ctx context.Context, urlPath string, w io.Writer) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(urlPath, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create snapshot request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("snapshot download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot download failed: unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("snapshot download failed: %w", err)
	}
	return nil
}
