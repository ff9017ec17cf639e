// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain reads live contract storage over Ethereum JSON-RPC and
// attaches what it finds to removal records as evidence.
//
// Evidence is strictly informational: a read never changes a record's
// classification or severity, and a failed read degrades to a record
// without evidence rather than a failed check.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// =============================================================================
// INTERFACES AND ERRORS
// =============================================================================

// HTTPClient is the transport the HTTP path talks through. *http.Client
// satisfies it; tests inject fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads one storage word. Implemented by RPCClient; the verifier
// accepts the interface so tests can fake the chain.
type Client interface {
	StorageAt(ctx context.Context, address string, slot uint64) (Word, error)
}

// ErrUnsupportedScheme rejects endpoints that are neither HTTP nor
// WebSocket URLs.
var ErrUnsupportedScheme = errors.New("unsupported rpc endpoint scheme")

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// =============================================================================
// JSON-RPC WIRE TYPES
// =============================================================================

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// DefaultRateLimit paces storage reads; public endpoints throttle
// aggressively and a burst of eth_getStorageAt is the classic trigger.
const DefaultRateLimit = 10.0

// RPCClient speaks eth_getStorageAt over HTTP(S) or WebSocket, selected
// by the endpoint scheme.
//
// Thread Safety: Safe for concurrent use. WebSocket calls are serialized
// on the single connection; HTTP calls run concurrently.
type RPCClient struct {
	endpoint   string
	httpClient HTTPClient
	limiter    *rate.Limiter
	nextID     atomic.Uint64

	// WebSocket state, lazily dialed and redialed after failures.
	ws     bool
	dialer *websocket.Dialer
	mu     sync.Mutex
	conn   *websocket.Conn
}

// ClientOption configures an RPCClient.
type ClientOption func(*RPCClient)

// WithHTTPClient injects the HTTP transport.
func WithHTTPClient(c HTTPClient) ClientOption {
	return func(r *RPCClient) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithDialer injects the WebSocket dialer.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(r *RPCClient) {
		if d != nil {
			r.dialer = d
		}
	}
}

// WithRateLimit sets the sustained reads-per-second pace. Zero or
// negative disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(r *RPCClient) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewRPCClient creates a client for an http(s):// or ws(s):// endpoint.
func NewRPCClient(endpoint string, opts ...ClientOption) (*RPCClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing rpc endpoint: %w", err)
	}

	c := &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), int(DefaultRateLimit)),
		dialer:     websocket.DefaultDialer,
	}
	switch u.Scheme {
	case "http", "https":
	case "ws", "wss":
		c.ws = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StorageAt reads the 32-byte word at the contract's storage slot, at the
// latest block.
func (c *RPCClient) StorageAt(ctx context.Context, address string, slot uint64) (Word, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Word{}, err
		}
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "eth_getStorageAt",
		Params:  []any{address, "0x" + strconv.FormatUint(slot, 16), "latest"},
	}

	var resp *rpcResponse
	var err error
	if c.ws {
		resp, err = c.callWS(ctx, req)
	} else {
		resp, err = c.callHTTP(ctx, req)
	}
	if err != nil {
		return Word{}, err
	}
	if resp.Error != nil {
		return Word{}, resp.Error
	}

	var hexWord string
	if err := json.Unmarshal(resp.Result, &hexWord); err != nil {
		return Word{}, fmt.Errorf("decoding storage result: %w", err)
	}
	return WordFromHex(hexWord)
}

// Close shuts down the WebSocket connection, if one is open.
func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *RPCClient) callHTTP(ctx context.Context, req rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 256))
		return nil, fmt.Errorf("rpc endpoint returned %d: %s", httpResp.StatusCode, bytes.TrimSpace(snippet))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding rpc response: %w", err)
	}
	return &resp, nil
}

// callWS serializes request/response pairs over the single connection.
// Subscriptions are never used, so responses arrive in request order;
// a response with a stale ID is skipped, up to a small bound.
func (c *RPCClient) callWS(ctx context.Context, req rpcRequest) (*rpcResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
		}
		c.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		_ = c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}

	if err := c.conn.WriteJSON(req); err != nil {
		c.dropConnLocked()
		return nil, fmt.Errorf("writing rpc request: %w", err)
	}

	for i := 0; i < 8; i++ {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.dropConnLocked()
			return nil, fmt.Errorf("reading rpc response: %w", err)
		}
		if resp.ID == req.ID {
			return &resp, nil
		}
	}
	c.dropConnLocked()
	return nil, errors.New("no matching rpc response on websocket")
}

// dropConnLocked discards a broken connection so the next call redials.
// Caller holds mu.
func (c *RPCClient) dropConnLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
