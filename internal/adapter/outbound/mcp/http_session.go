package mcp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

const (
	httpMaxResponseBody   = 8 * 1024 * 1024
	httpScannerInitialBuf = 64 * 1024
	httpScannerMaxBuf     = httpMaxResponseBody
)

// HTTPSession implements the streamable HTTP transport (§4.1): every
// call is a single self-contained POST whose response is either a plain
// application/json body or a one-shot text/event-stream body carrying a
// single JSON-RPC response. Unlike stdio and SSE, no persistent
// correlator is needed — there is no decoupled send/receive path to
// correlate across.
//
// Grounded on the host repository's HTTPClient for its TLS configuration
// and bounded-response-size conventions; the host's newline-delimited
// framing and io.Pipe bridging don't apply here since this transport's
// request/response is a plain HTTP round trip, not a persistent stream.
type HTTPSession struct {
	url     string
	headers map[string]string
	auth    *outgoingAuth
	logger  *slog.Logger
	client  *http.Client

	nextID    int64
	sessionID atomic.Value // string, set from Mcp-Session-Id response header if the backend assigns one
}

// NewHTTPSession builds a session for d, which must use
// TransportStreamableHTTP.
func NewHTTPSession(d *backend.Descriptor, logger *slog.Logger) *HTTPSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSession{
		url:     d.Connect.URL,
		headers: d.Connect.Headers,
		auth:    newOutgoingAuth(d.Auth),
		logger:  logger.With("backend", d.Name),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// HTTPSessionFactory adapts NewHTTPSession to backend.Factory.
func HTTPSessionFactory(logger *slog.Logger) backend.Factory {
	return func(d *backend.Descriptor) (backend.Session, error) {
		return NewHTTPSession(d, logger), nil
	}
}

func (s *HTTPSession) Initialize(ctx context.Context) (backend.ServerInfo, error) {
	result, err := s.call(ctx, "initialize", initializeParams())
	if err != nil {
		return backend.ServerInfo{}, classifyErr(err)
	}
	return parseServerInfo(result)
}

func (s *HTTPSession) ListCapabilities(ctx context.Context, kind capability.Kind) ([]backend.RawCapability, error) {
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

func (s *HTTPSession) Call(ctx context.Context, method, name string, args json.RawMessage) (backend.CallResult, error) {
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

func (s *HTTPSession) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "ping", map[string]any{})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&s.nextID, 1)
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if sid, ok := s.sessionID.Load().(string); ok && sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
	if err := s.auth.apply(ctx, req); err != nil {
		return nil, fmt.Errorf("mcp: apply auth: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		s.sessionID.Store(sid)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, httpMaxResponseBody))
		return nil, fmt.Errorf("mcp: backend returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		return readJSONEnvelope(resp.Body)
	case strings.HasPrefix(contentType, "text/event-stream"):
		return readSingleSSEEnvelope(resp.Body)
	default:
		return readJSONEnvelope(resp.Body)
	}
}

func readJSONEnvelope(body io.Reader) (json.RawMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(body, httpMaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("mcp: read response body: %w", err)
	}
	return envelopeResult(raw)
}

// readSingleSSEEnvelope reads a streamable-HTTP response whose body is
// framed as a single text/event-stream "data:" field carrying one
// JSON-RPC response, then stops — this transport's response stream
// closes after the one reply, unlike the classic SSE transport's
// long-lived GET stream.
func readSingleSSEEnvelope(body io.Reader) (json.RawMessage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, httpScannerInitialBuf), httpScannerMaxBuf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return envelopeResult([]byte(data))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mcp: read event stream: %w", err)
	}
	return nil, errors.New("mcp: event stream closed without a data field")
}

func envelopeResult(raw []byte) (json.RawMessage, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("mcp: parse response: %w", err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("%s", env.Error.Message)
	}
	return env.Result, nil
}

var _ backend.Session = (*HTTPSession)(nil)
