package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/strandkit/strand/pkg/models"
	"github.com/strandkit/strand/pkg/protocol"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBodySize = 10 << 20 // 10 MiB
)

// HTTPAdapter performs generic HTTP calls on behalf of action nodes.
// Operation names map to methods (get, post, put, patch, delete) or the
// generic "request" which reads the method from parameters.
type HTTPAdapter struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPAdapter(logger *slog.Logger) *HTTPAdapter {
	return &HTTPAdapter{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: logger.With("module", "http_adapter"),
	}
}

func (a *HTTPAdapter) Name() string { return "http" }

func (a *HTTPAdapter) Call(ctx context.Context, operation string, parameters map[string]any, credentials map[string]string) (map[string]any, error) {
	method, err := a.resolveMethod(operation, parameters)
	if err != nil {
		return nil, &protocol.AdapterError{Adapter: a.Name(), Operation: operation, Kind: models.ErrorKindInvalidRequest, Err: err}
	}

	url, _ := parameters["url"].(string)
	if url == "" {
		return nil, &protocol.AdapterError{
			Adapter:   a.Name(),
			Operation: operation,
			Kind:      models.ErrorKindInvalidRequest,
			Err:       errors.New("missing required parameter 'url'"),
		}
	}

	body, contentType, err := encodeBody(parameters["body"])
	if err != nil {
		return nil, &protocol.AdapterError{Adapter: a.Name(), Operation: operation, Kind: models.ErrorKindInvalidRequest, Err: err}
	}

	timeout := defaultHTTPTimeout
	if seconds, ok := parameters["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return nil, &protocol.AdapterError{Adapter: a.Name(), Operation: operation, Kind: models.ErrorKindInvalidRequest, Err: err}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if headers, ok := parameters["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	if token := credentials["token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	a.logger.DebugContext(ctx, "Executing HTTP call", "method", method, "url", url)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &protocol.AdapterError{Adapter: a.Name(), Operation: operation, Kind: classifyTransportError(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &protocol.AdapterError{Adapter: a.Name(), Operation: operation, Kind: models.ErrorKindNetwork, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(respBody), 200))

		return nil, &protocol.AdapterError{
			Adapter:   a.Name(),
			Operation: operation,
			Kind:      classifyStatusCode(resp.StatusCode),
			Err:       err,
		}
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
	}

	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(respBody)
	}

	return result, nil
}

func (a *HTTPAdapter) resolveMethod(operation string, parameters map[string]any) (string, error) {
	switch strings.ToLower(operation) {
	case "get", "post", "put", "patch", "delete":
		return strings.ToUpper(operation), nil
	case "request":
		method, _ := parameters["method"].(string)
		if method == "" {
			return http.MethodGet, nil
		}

		return strings.ToUpper(method), nil
	default:
		return "", fmt.Errorf("unsupported http operation %q", operation)
	}
}

func encodeBody(raw any) (io.Reader, string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, "", nil
	case string:
		if v == "" {
			return nil, "", nil
		}

		return strings.NewReader(v), "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}

		return bytes.NewReader(data), "application/json", nil
	}
}

func classifyTransportError(err error) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}

	return models.ErrorKindNetwork
}

func classifyStatusCode(code int) models.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.ErrorKindAuth
	case code == http.StatusTooManyRequests:
		return models.ErrorKindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return models.ErrorKindTimeout
	case code >= http.StatusInternalServerError:
		return models.ErrorKindNetwork
	default:
		return models.ErrorKindInvalidRequest
	}
}

func flattenHeaders(headers http.Header) map[string]any {
	flat := make(map[string]any, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}

	return flat
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
