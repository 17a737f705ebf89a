package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cortexflow/flowline/flow"
)

// HTTPTool makes HTTP requests on behalf of a workflow state.
//
// Input keys:
//   - "url" (required): target URL
//   - "method": "GET" or "POST", default "GET"
//   - "headers": map of header name to value
//   - "body": request body string for POST
//
// Output keys:
//   - "status_code": response status
//   - "body": response body as a string
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTPTool. Timeouts come from the call context.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

// Name returns the tool identifier.
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Call executes the request described by input.
func (h *HTTPTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required")
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	var body io.Reader
	if b, ok := input["body"].(string); ok && method == http.MethodPost {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(data),
	}, nil
}

// EndpointAgent calls a remote agent service over HTTP.
//
// The service contract is a JSON POST: the request body carries the
// query, the response body carries the result.
//
//	request:  {"query": "<payload query field>"}
//	response: {"result": "<answer>"}
//
// The agent reads QueryField from the payload, posts it to the URL, and
// writes the response's result into ResultField. Non-2xx responses and
// malformed bodies fail the step.
type EndpointAgent struct {
	// URL is the endpoint to POST to.
	URL string

	// APIKey, when set, is sent as the X-API-Key header.
	APIKey string

	// QueryField is the payload field sent as the query.
	// Default: "query".
	QueryField string

	// ResultField is the payload field the result is written to.
	// Default: "result".
	ResultField string

	// Client is the HTTP client to use. Default: http.DefaultClient.
	// Timeouts come from the run's context, so the default client is
	// usually fine.
	Client *http.Client
}

type endpointRequest struct {
	Query string `json:"query"`
}

type endpointResponse struct {
	Result string `json:"result"`
}

// Execute implements flow.Agent.
func (a *EndpointAgent) Execute(ctx context.Context, p flow.Payload) (flow.Payload, error) {
	queryField := a.QueryField
	if queryField == "" {
		queryField = "query"
	}
	resultField := a.ResultField
	if resultField == "" {
		resultField = "result"
	}

	query, ok := p.GetString(queryField)
	if !ok {
		return nil, fmt.Errorf("payload field %q is missing or not a string", queryField)
	}

	body, err := json.Marshal(endpointRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("X-API-Key", a.APIKey)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("endpoint %s returned status %d: %s", a.URL, resp.StatusCode, data)
	}

	var parsed endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	p[resultField] = parsed.Result
	return p, nil
}
