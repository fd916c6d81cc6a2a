// Package integrations holds the HTTP plumbing shared by the external
// service clients in its subpackages.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is returned when an external service responds with a non-2xx status.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", err.Service, err.StatusCode, err.Body)
}

// Temporary reports whether retrying the call later might succeed.
func (err *APIError) Temporary() bool {
	return err.StatusCode == http.StatusTooManyRequests || err.StatusCode >= 500
}

// Request describes a JSON call to an external service.
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
}

// DoJSON sends req, checks the status code and decodes the response body
// into out when out is non-nil. service prefixes every error.
func DoJSON(ctx context.Context, client *http.Client, service string, req Request, out any) error {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", service, err)
		}
		body = bytes.NewReader(payload)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", service, err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpRequest.Header.Set(key, value)
	}

	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("%s: sending request: %w", service, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))
		return &APIError{Service: service, StatusCode: httpResponse.StatusCode, Body: string(snippet)}
	}

	if out == nil || httpResponse.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(httpResponse.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%s: decoding response: %w", service, err)
	}
	return nil
}
