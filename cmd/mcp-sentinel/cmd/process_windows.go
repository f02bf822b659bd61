//go:build windows

package cmd

import "os"

// gracefulSignals returns the OS signals that trigger a graceful shutdown.
// On Windows: os.Interrupt (Ctrl+C); there is no SIGTERM equivalent.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
