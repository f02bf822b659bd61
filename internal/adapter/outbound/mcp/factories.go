package mcp

import (
	"log/slog"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Factories returns the backend.Factory for every transport this package
// implements, keyed the way clientmanager.New expects.
func Factories(logger *slog.Logger) map[backend.Transport]backend.Factory {
	return map[backend.Transport]backend.Factory{
		backend.TransportStdio:          StdioSessionFactory(logger),
		backend.TransportSSE:            SSESessionFactory(logger),
		backend.TransportStreamableHTTP: HTTPSessionFactory(logger),
	}
}
