package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

const (
	stdioScannerInitialBuf = 256 * 1024
	stdioScannerMaxBuf     = 4 * 1024 * 1024
)

// StdioSession connects to a backend launched as a subprocess, exchanging
// newline-delimited JSON-RPC over its stdin/stdout (§4.1). Grounded on
// the host repository's StdioClient subprocess management, with the
// request/response correlation it never needed (the host repo just
// relayed raw bytes) added on top, and the server's stderr routed
// through the gateway's own structured logger instead of straight to
// os.Stderr — piping a backend's raw log lines onto the gateway
// process's own stderr interleaves two unrelated log streams and can
// corrupt a parent process's framing if it's also reading this
// process's stderr for its own purposes.
type StdioSession struct {
	command string
	args    []string
	env     map[string]string
	logger  *slog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	corr  *correlator
}

// NewStdioSession builds a session for d, which must use TransportStdio.
func NewStdioSession(d *backend.Descriptor, logger *slog.Logger) *StdioSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioSession{
		command: d.Connect.Command,
		args:    d.Connect.Args,
		env:     d.Connect.Env,
		logger:  logger.With("backend", d.Name),
	}
}

// StdioSessionFactory adapts NewStdioSession to backend.Factory.
func StdioSessionFactory(logger *slog.Logger) backend.Factory {
	return func(d *backend.Descriptor) (backend.Session, error) {
		return NewStdioSession(d, logger), nil
	}
}

func (s *StdioSession) Initialize(ctx context.Context) (backend.ServerInfo, error) {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return backend.ServerInfo{}, errors.New("mcp: session already initialized")
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	if len(s.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return backend.ServerInfo{}, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		s.mu.Unlock()
		return backend.ServerInfo{}, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	cmd.Stderr = newStderrLogWriter(s.logger)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		s.mu.Unlock()
		return backend.ServerInfo{}, fmt.Errorf("mcp: start subprocess: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.corr = newCorrelator()
	s.mu.Unlock()

	go s.readLoop(stdout)
	go s.waitAndCleanup(cmd, stdin)

	result, err := s.doCall(ctx, "initialize", initializeParams())
	if err != nil {
		_ = s.Close()
		return backend.ServerInfo{}, classifyErr(err)
	}
	info, err := parseServerInfo(result)
	if err != nil {
		_ = s.Close()
		return backend.ServerInfo{}, err
	}
	return info, nil
}

func (s *StdioSession) readLoop(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, stdioScannerInitialBuf), stdioScannerMaxBuf)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.corr.dispatch(line)
	}

	s.mu.Lock()
	corr := s.corr
	s.mu.Unlock()
	if corr != nil {
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		corr.closeAll(fmt.Errorf("mcp: stdout closed: %w", err))
	}
}

func (s *StdioSession) waitAndCleanup(cmd *exec.Cmd, stdin io.WriteCloser) {
	_ = cmd.Wait()
	_ = stdin.Close()
}

func (s *StdioSession) doCall(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	corr := s.corr
	stdin := s.stdin
	s.mu.Unlock()
	if corr == nil || stdin == nil {
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
	payload = append(payload, '\n')

	s.mu.Lock()
	_, writeErr := stdin.Write(payload)
	s.mu.Unlock()
	if writeErr != nil {
		corr.cancel(id)
		return nil, fmt.Errorf("mcp: write request: %w", writeErr)
	}

	select {
	case resp := <-ch:
		return resp.Result, resp.Err
	case <-ctx.Done():
		corr.cancel(id)
		return nil, ctx.Err()
	}
}

func (s *StdioSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return s.doCall(ctx, method, params)
}

func (s *StdioSession) ListCapabilities(ctx context.Context, kind capability.Kind) ([]backend.RawCapability, error) {
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

func (s *StdioSession) Call(ctx context.Context, method, name string, args json.RawMessage) (backend.CallResult, error) {
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

func (s *StdioSession) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "ping", map[string]any{})
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

func (s *StdioSession) Close() error {
	s.mu.Lock()
	cmd := s.cmd
	corr := s.corr
	stdin := s.stdin
	s.cmd = nil
	s.mu.Unlock()

	if corr != nil {
		corr.closeAll(errors.New("mcp: session closed"))
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		killProcessGroup(cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("mcp: kill subprocess: %w", err)
		}
	}
	return nil
}

var _ backend.Session = (*StdioSession)(nil)

// stderrLogWriter adapts a backend subprocess's raw stderr stream into
// line-oriented slog.Debug calls instead of letting it write directly to
// the gateway process's own stderr.
type stderrLogWriter struct {
	logger *slog.Logger
	buf    []byte
}

func newStderrLogWriter(logger *slog.Logger) *stderrLogWriter {
	return &stderrLogWriter{logger: logger}
}

func (w *stderrLogWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := indexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if line != "" {
			w.logger.Debug("backend stderr", "line", line)
		}
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
