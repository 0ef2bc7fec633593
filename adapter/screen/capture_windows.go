package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

const captureSupported = true

const captureScript = `
param($Path, $X, $Y, $W, $H)
Add-Type -AssemblyName System.Windows.Forms
Add-Type -AssemblyName System.Drawing
if ($W -le 0) {
    $b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds
    $X = $b.X; $Y = $b.Y; $W = $b.Width; $H = $b.Height
}
$bmp = New-Object System.Drawing.Bitmap $W, $H
$g = [System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen($X, $Y, 0, 0, $bmp.Size)
$bmp.Save($Path, [System.Drawing.Imaging.ImageFormat]::Png)
$g.Dispose(); $bmp.Dispose()`

func captureScreenshot(ctx context.Context, region *image.Rectangle) ([]byte, error) {
	// The script runs from a file via -File so the param() block binds the
	// named arguments; with -Command everything after the script text is
	// joined into the command string and the arguments are lost.
	script := filepath.Join(os.TempDir(), fmt.Sprintf("deskclaw-capture-%d.ps1", os.Getpid()))
	if err := os.WriteFile(script, []byte(captureScript), 0600); err != nil {
		return nil, fmt.Errorf("screen: write capture script: %w", err)
	}
	defer os.Remove(script)

	path := filepath.Join(os.TempDir(), fmt.Sprintf("deskclaw-shot-%d.png", os.Getpid()))
	defer os.Remove(path)

	x, y, w, h := 0, 0, 0, 0
	if region != nil {
		x, y, w, h = region.Min.X, region.Min.Y, region.Dx(), region.Dy()
	}
	if out, err := exec.CommandContext(ctx, "powershell", captureArgs(script, path, x, y, w, h)...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screen: powershell capture: %v: %s", err, out)
	}
	return os.ReadFile(path)
}

func captureArgs(script, path string, x, y, w, h int) []string {
	return []string{
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
		"-File", script,
		"-Path", path,
		"-X", strconv.Itoa(x), "-Y", strconv.Itoa(y),
		"-W", strconv.Itoa(w), "-H", strconv.Itoa(h),
	}
}
