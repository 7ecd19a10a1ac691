package remote

import (
	"context"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
)

// IPResolver looks up the caller's public address through a JSON echo service answering
// {"ip": "..."}.
type IPResolver struct {
	url        string
	httpClient *http.Client
}

// NewIPResolver returns a resolver for url. An empty url disables lookups.
func NewIPResolver(url string, httpClient *http.Client) *IPResolver {
	return &IPResolver{url: url, httpClient: defaultHTTPClient(httpClient)}
}

// PublicIP returns the resolved address or notes.IPNotAvailable on any failure.
func (r *IPResolver) PublicIP(ctx context.Context) string {
	if r == nil {
		return notes.IPNotAvailable
	}
	raw, err := getJSON(ctx, r.httpClient, r.url, OpLoad)
	if err != nil {
		return notes.IPNotAvailable
	}
	object, ok := raw.(map[string]any)
	if !ok {
		return notes.IPNotAvailable
	}
	address, ok := object["ip"].(string)
	if !ok || strings.TrimSpace(address) == "" {
		return notes.IPNotAvailable
	}
	return address
}
