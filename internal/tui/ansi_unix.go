//go:build !windows

package tui

import "os"

// enableANSI is a no-op on Unix terminals, which support ANSI escape
// sequences natively.
func enableANSI(f *os.File) {}
