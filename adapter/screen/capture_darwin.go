package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
)

const captureSupported = true

// captureScreenshot grabs the screen (or the given region) into a temporary
// PNG and returns its bytes. The capture tool never plays a shutter sound and
// the file is removed before returning.
func captureScreenshot(ctx context.Context, region *image.Rectangle) ([]byte, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("deskclaw-shot-%d.png", os.Getpid()))
	defer os.Remove(path)

	args := []string{"-x", "-t", "png"}
	if region != nil {
		args = append(args, "-R", fmt.Sprintf("%d,%d,%d,%d", region.Min.X, region.Min.Y, region.Dx(), region.Dy()))
	}
	args = append(args, path)

	if out, err := exec.CommandContext(ctx, "screencapture", args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screen: screencapture: %v: %s", err, out)
	}
	return os.ReadFile(path)
}
