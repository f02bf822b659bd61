// Package auth implements the outgoing-auth strategies a backend session
// uses to compute headers sent to a remote SSE or Streamable HTTP backend
// (§4.1).
package auth

import "context"

// Strategy computes the headers to attach to an outbound backend request.
// A nil error with a nil/empty map means "no auth headers" — callers must
// not treat that as a failure.
type Strategy interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// None is the zero-value strategy: it adds no headers and never fails.
type None struct{}

func (None) Headers(context.Context) (map[string]string, error) { return nil, nil }

// Static returns a fixed header set computed once at descriptor load time
// from already-resolved configuration (no secrets are read here — the
// core receives them already resolved, per the Non-goals).
type Static struct {
	headers map[string]string
}

// NewStatic builds a Static strategy from a resolved header map.
func NewStatic(headers map[string]string) *Static {
	return &Static{headers: headers}
}

func (s *Static) Headers(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out, nil
}
