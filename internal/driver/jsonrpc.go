package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a minimal JSON-RPC 2.0 client shared by the EVM and Solana
// drivers. Safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewClient creates a JSON-RPC client for a node endpoint.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// Call performs one JSON-RPC request. Node-reported errors and transport
// failures are both wrapped as ErrRPC.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	if params == nil {
		params = []interface{}{}
	}
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPC, err)
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrRPC, err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("%w: %d: %s", ErrRPC, response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}

// CallString performs a call whose result is a single JSON string.
func (c *Client) CallString(ctx context.Context, method string, params ...interface{}) (string, error) {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return "", fmt.Errorf("%w: unexpected result shape: %v", ErrRPC, err)
	}
	return s, nil
}
