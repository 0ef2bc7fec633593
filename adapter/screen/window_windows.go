package screen

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const lookupSupported = true

// frontWindowScript resolves the foreground window title and owning process
// through the Win32 API via PowerShell, avoiding a cgo dependency. $pid is
// PowerShell's read-only automatic variable (the shell's own PID), hence the
// $procId name.
const frontWindowScript = `
Add-Type @"
using System;
using System.Runtime.InteropServices;
public class FG {
    [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
    [DllImport("user32.dll")] public static extern uint GetWindowThreadProcessId(IntPtr hWnd, out uint pid);
    [DllImport("user32.dll")] public static extern int GetWindowText(IntPtr hWnd, System.Text.StringBuilder text, int count);
}
"@
$h = [FG]::GetForegroundWindow()
$sb = New-Object System.Text.StringBuilder 512
[FG]::GetWindowText($h, $sb, 512) | Out-Null
$procId = 0
[FG]::GetWindowThreadProcessId($h, [ref]$procId) | Out-Null
$name = ""
try { $name = (Get-Process -Id $procId).ProcessName } catch {}
Write-Output ($name + "|" + $sb.ToString())`

func activeWindow(ctx context.Context) (WindowInfo, error) {
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", frontWindowScript).Output()
	if err != nil {
		return WindowInfo{}, fmt.Errorf("screen: powershell window lookup: %w", err)
	}

	parts := strings.SplitN(strings.TrimSpace(string(out)), "|", 2)
	info := WindowInfo{}
	if len(parts) > 0 {
		info.Process = parts[0]
	}
	if len(parts) > 1 {
		info.Title = parts[1]
	}
	return info, nil
}
