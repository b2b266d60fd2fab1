package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	CurrentVersion string    `json:"currentVersion"`
	BuildDate      time.Time `json:"buildDate"`
}

// GetVersion returns the version of the streamer host.
func (c *Client) GetVersion(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.getJSON(ctx, "/version", &info); err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &info, nil
}

// VersionURL derives the REST base URL from the hub endpoint: the scheme is
// mapped to http(s) and the path is dropped.
//
//	wss://gateway.example.com/sockets/streamer -> https://gateway.example.com
func VersionURL(streamerEndpoint string) (string, error) {
	u, err := url.Parse(streamerEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse streamer endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("streamer endpoint %q has no host", streamerEndpoint)
	}

	scheme := u.Scheme
	switch scheme {
	case "wss":
		scheme = "https"
	case "ws":
		scheme = "http"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q in streamer endpoint", u.Scheme)
	}

	return scheme + "://" + u.Host, nil
}
