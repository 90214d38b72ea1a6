// Package device selects the compute target a session runs on.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupported is returned for targets this build cannot drive.
var ErrUnsupported = errors.New("unsupported device")

const (
	Auto = "auto"
	CPU  = "cpu"
)

// Device is acquired once per session and passed explicitly to the
// components that need it.
type Device struct {
	Kind    string
	Threads int
}

func (d Device) String() string {
	return fmt.Sprintf("%s(threads=%d)", d.Kind, d.Threads)
}

// Select resolves a device name. "auto" falls back to the CPU because no
// accelerator backend is compiled in.
func Select(name string, logger *zap.Logger) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Auto:
		logger.Info("No accelerator found; CPU only")
	case CPU:
	default:
		return Device{}, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	return Device{Kind: CPU, Threads: runtime.NumCPU()}, nil
}
