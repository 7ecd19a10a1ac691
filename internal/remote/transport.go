package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every remote call when the caller supplies no HTTP client.
const DefaultTimeout = 30 * time.Second

const maxDocumentBytes = 64 << 20

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// getJSON fetches url without caching and decodes the body into generic JSON values.
func getJSON(ctx context.Context, client *http.Client, url string, op Op) (any, error) {
	if url == "" {
		return nil, newError(op, 0, ErrNotConfigured)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newError(op, 0, err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Cache-Control", "no-store")

	response, err := client.Do(request)
	if err != nil {
		return nil, newError(op, 0, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDocumentBytes))
		return nil, newError(op, response.StatusCode, nil)
	}

	var decoded any
	if err := json.NewDecoder(io.LimitReader(response.Body, maxDocumentBytes)).Decode(&decoded); err != nil {
		return nil, newError(op, response.StatusCode, fmt.Errorf("decode body: %w", err))
	}
	return decoded, nil
}

// putJSON replaces the document at url with payload.
func putJSON(ctx context.Context, client *http.Client, url string, payload any, op Op) error {
	if url == "" {
		return newError(op, 0, ErrNotConfigured)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return newError(op, 0, fmt.Errorf("encode body: %w", err))
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(encoded))
	if err != nil {
		return newError(op, 0, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return newError(op, 0, err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDocumentBytes))

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newError(op, response.StatusCode, nil)
	}
	return nil
}
