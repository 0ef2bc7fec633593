//go:build !darwin && !windows

package screen

import (
	"context"
	"image"

	"github.com/deskclaw/deskclaw/adapter"
)

const captureSupported = false

func captureScreenshot(ctx context.Context, region *image.Rectangle) ([]byte, error) {
	return nil, adapter.ErrUnsupportedPlatform
}
