// Package history selects, orders and pages sensor readings for display and export.
package history

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for window names outside all/1d/3d/7d.
var ErrInvalidWindow = errors.New("invalid time window")

// Window is a named relative time range anchored to the evaluation-time now.
type Window string

const (
	WindowAll Window = "all"
	Window1D  Window = "1d"
	Window3D  Window = "3d"
	Window7D  Window = "7d"
)

// Windows lists the supported windows in UI order.
func Windows() []Window {
	return []Window{WindowAll, Window1D, Window3D, Window7D}
}

// ParseWindow reads a window name. The empty string means all.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WindowAll, nil
	case WindowAll, Window1D, Window3D, Window7D:
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

// Duration returns the window length, zero for all.
func (w Window) Duration() time.Duration {
	switch w {
	case Window1D:
		return 24 * time.Hour
	case Window3D:
		return 3 * 24 * time.Hour
	case Window7D:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Bounded reports whether the window restricts anything.
func (w Window) Bounded() bool {
	return w.Duration() > 0
}

// Threshold returns the oldest instant kept by the window.
func (w Window) Threshold(now time.Time) time.Time {
	return now.Add(-w.Duration())
}
