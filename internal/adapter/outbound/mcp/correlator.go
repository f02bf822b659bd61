// Package mcp implements the three backend.Session adapters — stdio,
// SSE, and streamable HTTP — that give the client manager a live
// connection to an aggregated backend (§4.1).
package mcp

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// rpcEnvelope is the JSON-RPC 2.0 envelope shared by every wire message
// this package sends or receives.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage
	Err    error
}

// correlator matches asynchronously-arriving JSON-RPC responses back to
// the call that issued the request, for the two transports (stdio, SSE)
// whose request and response paths aren't a single round trip. One
// correlator is shared by every call a session makes over its lifetime.
type correlator struct {
	nextID int64

	mu      sync.Mutex
	pending map[int64]chan rpcResponse
	closed  bool
	closeErr error
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int64]chan rpcResponse)}
}

// register allocates a fresh request ID and the channel its response
// will be delivered on.
func (c *correlator) register() (int64, chan rpcResponse, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, c.closeErr
	}
	c.pending[id] = ch
	return id, ch, nil
}

// cancel removes a registered-but-unanswered request, e.g. after its
// context is cancelled. Safe to call even if the response already
// arrived (dispatch will simply find nothing to deliver to).
func (c *correlator) cancel(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dispatch parses one line/event of wire data and, if it is a response
// to a pending request, delivers it. Server-to-client notifications
// (envelopes with Method set and no ID) are silently dropped — this
// module's sessions have no use for them.
func (c *correlator) dispatch(raw []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.ID == nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*env.ID]
	if ok {
		delete(c.pending, *env.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if env.Error != nil {
		ch <- rpcResponse{Err: fmt.Errorf("%s", env.Error.Message)}
	} else {
		ch <- rpcResponse{Result: env.Result}
	}
}

// closeAll fails every still-pending request with err and marks the
// correlator closed, so any later register call fails fast instead of
// hanging forever waiting for a response that will never arrive.
func (c *correlator) closeAll(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[int64]chan rpcResponse)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- rpcResponse{Err: err}
	}
}

func encodeRequest(id int64, method string, params any) ([]byte, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	env := rpcEnvelope{JSONRPC: "2.0", ID: &id, Method: method, Params: paramsJSON}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, nil
}
