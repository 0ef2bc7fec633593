// Package screen implements the screen adapter: a fast active-window watcher
// and an optional, slower content-recognition loop sharing one adapter
// identity. Window identity comes from a platform-specific lookup behind a
// single accessor; unsupported platforms fail explicitly, there is no silent
// fallback.
package screen

import (
	"context"
	"image"
)

// WindowInfo identifies the active window.
type WindowInfo struct {
	Title   string
	Process string
	Bounds  *image.Rectangle // screen coordinates when the platform reports them
}

// ActiveWindow returns the currently focused window. On platforms without a
// lookup implementation it returns adapter.ErrUnsupportedPlatform.
func ActiveWindow(ctx context.Context) (WindowInfo, error) {
	return activeWindow(ctx)
}

// Supported reports whether the host platform has a window lookup.
func Supported() bool {
	return lookupSupported
}
