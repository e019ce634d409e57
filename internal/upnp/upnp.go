// Package upnp fetches and caches UPnP device description documents. It
// deliberately stops short of SOAP control: callers needing to invoke actions
// supply their own ActionCaller.
package upnp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	defaultAgent   = "upnpscan/1.0 UPnP/2.0"

	// maxDescriptionSize bounds how much of a description document is read.
	// Real documents are a few kilobytes; anything larger is suspect.
	maxDescriptionSize = 1 << 20
)

// Requester performs an HTTP exchange. Implementations must be safe for
// concurrent use.
type Requester interface {
	Request(ctx context.Context, method, url string, headers http.Header, body []byte) (int, http.Header, []byte, error)
}

// ActionCaller invokes a SOAP action against a service control endpoint.
// This package defines the contract only.
type ActionCaller interface {
	CallAction(ctx context.Context, controlURL, serviceType, action string, args map[string]string) (map[string]string, error)
}

// ResponseError reports a non-success HTTP status.
type ResponseError struct {
	Status int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Status)
}

// HTTPRequester is the default Requester backed by net/http.
type HTTPRequester struct {
	// Client is used for requests; a client with a short timeout when nil.
	Client *http.Client
	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Request performs one HTTP exchange and returns status, headers and body.
func (r *HTTPRequester) Request(ctx context.Context, method, url string, headers http.Header, body []byte) (int, http.Header, []byte, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		agent := r.UserAgent
		if agent == "" {
			agent = defaultAgent
		}
		req.Header.Set("User-Agent", agent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, data, nil
}
