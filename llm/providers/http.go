// Package providers implements LLM provider adapters. Each adapter is
// registered in the llm registry via init() and selected by name.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/c360studio/casegen/llm"
)

// postJSON executes one JSON POST and returns the response body, classifying
// transport and HTTP failures into the llm error taxonomy.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Network errors are transient.
		return nil, llm.NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, llm.MaxResponseSize))
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyHTTPError(resp.StatusCode, respBody)
	}
	return respBody, nil
}
