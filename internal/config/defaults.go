package config

import (
	"os"
	"runtime"
)

// DefaultPort is the preferred listen port for the session server.
const DefaultPort = 48632

// DefaultDeviceName falls back to the machine hostname, or a generic
// name when even that is unavailable.
func DefaultDeviceName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "Companion Host"
}

// DefaultPlatform maps the runtime OS to the platform identifier sent
// to peers.
func DefaultPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}
