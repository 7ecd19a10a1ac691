package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// EventDocumentChanged is the stream event sent after the shared document is replaced or deleted.
const EventDocumentChanged = "document-change"

const maxEventLineBytes = 1 << 20

// ChangeEvent announces a new revision of the shared document.
type ChangeEvent struct {
	DocumentID string `json:"documentId"`
	Revision   int64  `json:"revision"`
	Deleted    bool   `json:"deleted"`
	Timestamp  string `json:"timestamp"`
}

// Watch follows the server-sent event stream at <endpoint>/stream and calls onChange for every
// document change. Heartbeats and unknown events are skipped. Watch returns nil once ctx is done
// and an error matching ErrWatch when the stream cannot be opened or breaks.
func (c *Client) Watch(ctx context.Context, onChange func(ChangeEvent)) error {
	if c.endpoint == "" {
		return newError(OpWatch, 0, ErrNotConfigured)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.endpoint, "/")+"/stream", nil)
	if err != nil {
		return newError(OpWatch, 0, err)
	}
	request.Header.Set("Accept", "text/event-stream")
	request.Header.Set("Cache-Control", "no-store")

	// Streams outlive the client timeout; only ctx ends them.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	response, err := streamClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return newError(OpWatch, 0, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxEventLineBytes))
		return newError(OpWatch, response.StatusCode, nil)
	}

	err = readEvents(response.Body, func(eventType, data string) {
		if eventType != EventDocumentChanged {
			return
		}
		var event ChangeEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.logger.Debug("skipping malformed change event")
			return
		}
		onChange(event)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return newError(OpWatch, response.StatusCode, err)
}

// readEvents splits an event stream into (event, data) pairs. Multi-line data is joined with
// newlines; events without a name are reported as "message".
func readEvents(reader io.Reader, dispatch func(eventType, data string)) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLineBytes)

	eventType := ""
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if eventType == "" {
					eventType = "message"
				}
				dispatch(eventType, strings.Join(data, "\n"))
			}
			eventType = ""
			data = data[:0]
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
