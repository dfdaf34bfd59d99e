package embed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/c360studio/ucc/retry"
)

// maxResponseSize limits embedding response bodies.
const maxResponseSize = 32 * 1024 * 1024

// httpClient is the shared transport config for both HTTP backends.
func httpClient() *http.Client {
	return &http.Client{Timeout: CallTimeout}
}

// postJSON sends a JSON body and returns the response bytes, classifying
// failures as transient or fatal the way the HTTP status implies.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, retry.Transient(fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("embedding API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return retry.Transient(err)
	case statusCode >= 500:
		return retry.Transient(err)
	default:
		return retry.Fatal(err)
	}
}
