// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storageNode is a fake JSON-RPC node serving eth_getStorageAt from a
// slot -> hex word map over HTTP or WebSocket.
type storageNode struct {
	t     *testing.T
	slots map[string]string
}

func (n *storageNode) answer(req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if req.Method != "eth_getStorageAt" {
		resp.Error = &RPCError{Code: -32601, Message: "method not found"}
		return resp
	}
	if len(req.Params) != 3 {
		resp.Error = &RPCError{Code: -32602, Message: "wrong param count"}
		return resp
	}
	slotHex, _ := req.Params[1].(string)
	word, ok := n.slots[slotHex]
	if !ok {
		word = "0x0"
	}
	raw, err := json.Marshal(word)
	require.NoError(n.t, err)
	resp.Result = raw
	return resp
}

func (n *storageNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))
	w.Header().Set("Content-Type", "application/json")
	require.NoError(n.t, json.NewEncoder(w).Encode(n.answer(req)))
}

func (n *storageNode) serveWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if err := conn.WriteJSON(n.answer(req)); err != nil {
			return
		}
	}
}

func TestStorageAtHTTP(t *testing.T) {
	node := &storageNode{t: t, slots: map[string]string{
		"0x0": "0x" + strings.Repeat("00", 12) + strings.Repeat("ab", 20),
		"0x2": "0x1",
	}}
	srv := httptest.NewServer(http.HandlerFunc(node.serveHTTP))
	defer srv.Close()

	c, err := NewRPCClient(srv.URL, WithRateLimit(0))
	require.NoError(t, err)

	w, err := c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 0)
	require.NoError(t, err)
	assert.False(t, w.IsZero())
	assert.Equal(t, byte(0xab), w[12])

	w, err = c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 2)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), w[31])

	// An untouched slot reads as the zero word, not an error.
	w, err = c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 9)
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestStorageAtWebSocket(t *testing.T) {
	node := &storageNode{t: t, slots: map[string]string{"0x7": "0xff"}}
	srv := httptest.NewServer(http.HandlerFunc(node.serveWS))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := NewRPCClient(endpoint, WithRateLimit(0))
	require.NoError(t, err)
	defer c.Close()

	w, err := c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 7)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), w[31])

	// The single connection is reused across calls.
	w, err = c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 7)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), w[31])
}

func TestStorageAtNodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32000, Message: "header not found"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewRPCClient(srv.URL, WithRateLimit(0))
	require.NoError(t, err)

	_, err = c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 0)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestStorageAtHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewRPCClient(srv.URL, WithRateLimit(0))
	require.NoError(t, err)

	_, err = c.StorageAt(context.Background(), "0x1111111111111111111111111111111111111111", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewRPCClientRejectsScheme(t *testing.T) {
	_, err := NewRPCClient("ftp://node.example")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestStorageAtContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewRPCClient(srv.URL, WithRateLimit(0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.StorageAt(ctx, "0x1111111111111111111111111111111111111111", 0)
	require.Error(t, err)
}
