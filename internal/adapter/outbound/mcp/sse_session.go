package mcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

const (
	sseScannerInitialBuf = 64 * 1024
	sseScannerMaxBuf     = 4 * 1024 * 1024
	sseReconnectBackoff  = 2 * time.Second
	sseEndpointWait      = 10 * time.Second
)

// SSESession implements the classic SSE transport (§4.1): a long-lived
// GET request streams server-to-client messages, while the client POSTs
// each request to a separate endpoint the server announces over that
// same stream via an "endpoint" event. Because the send and receive
// paths are decoupled, responses are matched back to their request via
// the shared correlator, same as the stdio transport.
//
// Grounded on the "conductor" example's SSEClient manual field-by-field
// SSE parsing and last-event-ID reconnect pattern, adapted from a
// one-directional debug-event feed into a bidirectional request/response
// channel. TLS client settings follow the deleted HTTP client's
// conventions.
type SSESession struct {
	streamURL string
	headers   map[string]string
	auth      *outgoingAuth
	logger    *slog.Logger
	client    *http.Client

	mu           sync.Mutex
	corr         *correlator
	cancelStream context.CancelFunc
	lastEventID  string
	postURL      string
	endpointCh   chan struct{}
	endpointSet  bool
}

// NewSSESession builds a session for d, which must use TransportSSE.
func NewSSESession(d *backend.Descriptor, logger *slog.Logger) *SSESession {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSESession{
		streamURL: d.Connect.URL,
		headers:   d.Connect.Headers,
		auth:      newOutgoingAuth(d.Auth),
		logger:    logger.With("backend", d.Name),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		endpointCh: make(chan struct{}),
	}
}

// SSESessionFactory adapts NewSSESession to backend.Factory.
func SSESessionFactory(logger *slog.Logger) backend.Factory {
	return func(d *backend.Descriptor) (backend.Session, error) {
		return NewSSESession(d, logger), nil
	}
}

func (s *SSESession) Initialize(ctx context.Context) (backend.ServerInfo, error) {
	s.mu.Lock()
	if s.corr != nil {
		s.mu.Unlock()
		return backend.ServerInfo{}, errors.New("mcp: session already initialized")
	}
	s.corr = newCorrelator()
	streamCtx, cancel := context.WithCancel(context.Background())
	s.cancelStream = cancel
	s.mu.Unlock()

	go s.streamLoop(streamCtx)

	if err := s.waitForEndpoint(ctx); err != nil {
		_ = s.Close()
		return backend.ServerInfo{}, err
	}

	result, err := s.doCall(ctx, "initialize", initializeParams())
	if err != nil {
		_ = s.Close()
		return backend.ServerInfo{}, classifyErr(err)
	}
	return parseServerInfo(result)
}

func (s *SSESession) waitForEndpoint(ctx context.Context) error {
	select {
	case <-s.endpointCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sseEndpointWait):
		return errors.New("mcp: backend never announced a message endpoint")
	}
}

// streamLoop holds the long-lived GET connection open, reconnecting with
// the last delivered event ID on disconnect until the session is closed
// or ctx is cancelled.
func (s *SSESession) streamLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.streamOnce(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err == nil {
			return
		}

		s.logger.Debug("sse stream disconnected, reconnecting", "error", err)
		select {
		case <-time.After(sseReconnectBackoff):
		case <-ctx.Done():
			return
		}
	}
}

func (s *SSESession) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("mcp: build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	s.mu.Lock()
	lastEventID := s.lastEventID
	s.mu.Unlock()
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	if err := s.auth.apply(ctx, req); err != nil {
		return fmt.Errorf("mcp: apply auth: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: stream connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mcp: stream returned HTTP %d", resp.StatusCode)
	}

	return s.readEvents(resp.Body)
}

// readEvents parses the SSE wire format field by field, same shape as
// the conductor example: blank line terminates an event, "id"/"event"/
// "data" are the only fields this protocol uses.
func (s *SSESession) readEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, sseScannerInitialBuf), sseScannerMaxBuf)

	var id, event string
	var data strings.Builder

	flush := func() {
		if data.Len() == 0 && event == "" {
			return
		}
		s.handleEvent(id, event, data.String())
		id, event = "", ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			id = value
		case "event":
			event = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: read event stream: %w", err)
	}
	return io.EOF
}

func (s *SSESession) handleEvent(id, event, data string) {
	if id != "" {
		s.mu.Lock()
		s.lastEventID = id
		s.mu.Unlock()
	}

	switch event {
	case "endpoint":
		s.setPostURL(data)
	case "message", "":
		s.mu.Lock()
		corr := s.corr
		s.mu.Unlock()
		if corr != nil {
			corr.dispatch([]byte(data))
		}
	}
}

func (s *SSESession) setPostURL(raw string) {
	resolved := raw
	if base, err := url.Parse(s.streamURL); err == nil {
		if ref, err := url.Parse(raw); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
	}

	s.mu.Lock()
	s.postURL = resolved
	first := !s.endpointSet
	s.endpointSet = true
	s.mu.Unlock()

	if first {
		close(s.endpointCh)
	}
}

func (s *SSESession) doCall(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	corr := s.corr
	postURL := s.postURL
	s.mu.Unlock()
	if corr == nil || postURL == "" {
		return nil, errors.New("mcp: session not initialized")
	}

	id, ch, err := corr.register()
	if err != nil {
		return nil, err
	}

	payload, err := encodeRequest(id, method, params)
	if err != nil {
		corr.cancel(id)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(string(payload)))
	if err != nil {
		corr.cancel(id)
		return nil, fmt.Errorf("mcp: build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if err := s.auth.apply(ctx, req); err != nil {
		corr.cancel(id)
		return nil, fmt.Errorf("mcp: apply auth: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		corr.cancel(id)
		return nil, fmt.Errorf("mcp: post request failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		corr.cancel(id)
		return nil, fmt.Errorf("mcp: backend returned HTTP %d for posted request", resp.StatusCode)
	}

	select {
	case r := <-ch:
		return r.Result, r.Err
	case <-ctx.Done():
		corr.cancel(id)
		return nil, ctx.Err()
	}
}

func (s *SSESession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return s.doCall(ctx, method, params)
}

func (s *SSESession) ListCapabilities(ctx context.Context, kind capability.Kind) ([]backend.RawCapability, error) {
	method, err := listMethod(kind)
	if err != nil {
		return nil, err
	}
	result, err := s.call(ctx, method, map[string]any{})
	if err != nil {
		return nil, classifyErr(err)
	}
	return parseCapabilityList(kind, result)
}

func (s *SSESession) Call(ctx context.Context, method, name string, args json.RawMessage) (backend.CallResult, error) {
	wireMethod, params, err := callSpec(method, name, args)
	if err != nil {
		return backend.CallResult{}, err
	}
	result, err := s.call(ctx, wireMethod, params)
	if err != nil {
		return backend.CallResult{}, classifyErr(err)
	}
	return backend.CallResult{Payload: result}, nil
}

func (s *SSESession) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "ping", map[string]any{})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (s *SSESession) Close() error {
	s.mu.Lock()
	cancel := s.cancelStream
	corr := s.corr
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if corr != nil {
		corr.closeAll(errors.New("mcp: session closed"))
	}
	s.client.CloseIdleConnections()
	return nil
}

var _ backend.Session = (*SSESession)(nil)
