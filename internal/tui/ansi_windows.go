//go:build windows

package tui

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableANSI turns on Virtual Terminal Processing so mpb's ANSI bar
// rendering works on the Windows console.
//
// Grounded on the teacher's internal/progress/uploadui_windows.go.
func enableANSI(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err == nil {
		const enableVirtualTerminalProcessing = 0x0004
		_ = windows.SetConsoleMode(handle, mode|enableVirtualTerminalProcessing)
	}
}
