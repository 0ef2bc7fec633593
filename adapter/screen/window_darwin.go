package screen

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
)

const lookupSupported = true

// frontWindowScript asks System Events for the frontmost process, its front
// window title, and the window bounds. Bounds are best-effort: some apps have
// no scriptable front window.
const frontWindowScript = `
tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set winTitle to ""
	set winBounds to ""
	try
		set win to front window of frontApp
		set winTitle to name of win
		set {x, y} to position of win
		set {w, h} to size of win
		set winBounds to (x as text) & "," & (y as text) & "," & (w as text) & "," & (h as text)
	end try
	return appName & "|" & winTitle & "|" & winBounds
end tell`

func activeWindow(ctx context.Context) (WindowInfo, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", frontWindowScript).Output()
	if err != nil {
		return WindowInfo{}, fmt.Errorf("screen: osascript: %w", err)
	}

	parts := strings.SplitN(strings.TrimSpace(string(out)), "|", 3)
	info := WindowInfo{}
	if len(parts) > 0 {
		info.Process = parts[0]
	}
	if len(parts) > 1 {
		info.Title = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		if rect, ok := parseBounds(parts[2]); ok {
			info.Bounds = &rect
		}
	}
	return info, nil
}

func parseBounds(s string) (image.Rectangle, bool) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return image.Rectangle{}, false
	}
	nums := make([]int, 4)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return image.Rectangle{}, false
		}
		nums[i] = n
	}
	return image.Rect(nums[0], nums[1], nums[0]+nums[2], nums[1]+nums[3]), true
}
