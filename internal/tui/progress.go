package tui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale-labs/termscp/internal/transfer"
)

// ProgressView renders the live per-file progress bars for a
// Transferring{job} sub-state (spec §4.3) using mpb, one bar per file
// currently in flight. Non-terminal output (piped stdout/stderr) falls
// back to plain status lines.
//
// Grounded on the teacher's internal/progress/downloadui.go and
// uploadui.go: same mpb bar style, EWMA speed/ETA decorators, and
// terminal-detection fallback, generalized from "download/upload queue
// of named files" to "whatever paths the transfer engine reports
// progress for".
type ProgressView struct {
	mu         sync.Mutex
	progress   *mpb.Progress
	bars       map[string]*mpb.Bar
	isTerminal bool
}

// NewProgressView creates a progress renderer writing to w (typically
// os.Stderr, so it doesn't collide with stdout banners/log lines).
func NewProgressView(w *os.File) *ProgressView {
	isTerminal := term.IsTerminal(int(w.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSI(w)
		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &ProgressView{
		progress:   p,
		bars:       make(map[string]*mpb.Bar),
		isTerminal: isTerminal,
	}
}

// Func adapts the view into a transfer.ProgressFunc, for
// transfer.Options.OnProgress.
func (v *ProgressView) Func() transfer.ProgressFunc {
	return func(path string, done, total int64) { v.update(path, done, total) }
}

func (v *ProgressView) update(path string, done, total int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	bar, ok := v.bars[path]
	if !ok {
		if !v.isTerminal {
			fmt.Fprintf(os.Stderr, "%s ...\n", path)
		}
		barTotal := total
		if barTotal <= 0 {
			barTotal = 100
		}
		bar = v.progress.New(barTotal,
			mpb.BarStyle().Lbound("[").Filler("#").Tip("#").Padding("-").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(shortenPath(path, 40), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
		v.bars[path] = bar
	}
	if total > 0 {
		bar.SetCurrent(done)
	}
	if total >= 0 && done >= total {
		delete(v.bars, path)
		if !v.isTerminal {
			fmt.Fprintf(os.Stderr, "%s done\n", path)
		}
	}
}

// Wait blocks until every bar has been removed (all jobs finished or
// aborted).
func (v *ProgressView) Wait() {
	v.progress.Wait()
}

// Writer returns an io.Writer safe to print through without corrupting
// the live bars (writes go above them).
func (v *ProgressView) Writer() io.Writer {
	if v.isTerminal {
		return v.progress
	}
	return os.Stderr
}

func shortenPath(p string, max int) string {
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-max+3:]
}
