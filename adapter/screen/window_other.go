//go:build !darwin && !windows

package screen

import (
	"context"

	"github.com/deskclaw/deskclaw/adapter"
)

const lookupSupported = false

func activeWindow(ctx context.Context) (WindowInfo, error) {
	return WindowInfo{}, adapter.ErrUnsupportedPlatform
}
