// Package activity implements the top-level activity manager and event
// loop (spec §4.3): Auth, FileTransfer, SetupConfig, Terminate. Each
// activity runs to completion, produces a NextActivity transition, and
// is destructed before the manager constructs the next one.
//
// Grounded on the teacher's internal/state (observable state containers
// publishing on an EventBus) generalized from "Fyne/Wails frontend
// state" to "termscp's cooperative TUI event loop", and on
// internal/tui's Dispatcher/FocusChain/Component pattern for the
// per-activity "event = input.poll(); messages = dispatch(event);
// state = reduce(state, messages)" loop of spec §4.3.
package activity

import (
	"context"
	"time"

	"github.com/rescale-labs/termscp/internal/bookmarks"
	"github.com/rescale-labs/termscp/internal/config"
	"github.com/rescale-labs/termscp/internal/events"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/logging"
	"github.com/rescale-labs/termscp/internal/tui"
)

// Kind names one of the four top-level activities of spec §4.3.
type Kind int

const (
	KindAuth Kind = iota
	KindFileTransfer
	KindSetupConfig
	KindTerminate
)

// NextActivity is what an activity returns on exit: which activity the
// manager should construct next, carrying whatever state the next
// activity needs (connection params for FileTransfer, an exit code for
// Terminate).
type NextActivity struct {
	Kind     Kind
	Params   filetransfer.FileTransferParams
	ExitCode int
}

// Activity is one top-level state of the manager's loop.
type Activity interface {
	// Run drives the activity's own cooperative event loop to
	// completion and returns the transition to make next.
	Run(ctx context.Context) NextActivity
}

// Manager owns the long-lived resources shared by every activity
// (stores, logger, event bus) and loops constructing/running/destructing
// activities per spec §4.3's "NextActivity transition" rule.
type Manager struct {
	Bookmarks *bookmarks.Store
	Config    *config.ConfigStore
	Theme     *config.ThemeStore
	Logger    *logging.Logger
	EventBus  *events.EventBus

	// TickInterval is the event loop's idle-tick cadence (spec §4.3,
	// default 10ms; overridden by the CLI's -t/--ticks flag).
	TickInterval time.Duration

	// LocalEntryDirectory is where the FileTransfer activity's local
	// pane starts (CLI positional [localdir], or the working directory).
	LocalEntryDirectory string

	// Input is shared across activities so the terminal is only ever
	// put into raw mode once per process lifetime.
	Input *tui.InputSource
}

// NewManager wires a Manager from already-opened stores.
func NewManager(bk *bookmarks.Store, cfg *config.ConfigStore, theme *config.ThemeStore, logger *logging.Logger, bus *events.EventBus) *Manager {
	return &Manager{
		Bookmarks:    bk,
		Config:       cfg,
		Theme:        theme,
		Logger:       logger,
		EventBus:     bus,
		TickInterval: 10 * time.Millisecond,
	}
}

// Run drives the activity loop starting from Auth (or directly from
// FileTransfer if initialParams is already populated, e.g. the CLI
// passed an address on the command line) until Terminate, returning the
// process exit code.
func (m *Manager) Run(ctx context.Context, initialParams *filetransfer.FileTransferParams) int {
	start := NextActivity{Kind: KindAuth}
	if initialParams != nil {
		start = NextActivity{Kind: KindFileTransfer, Params: *initialParams}
	}
	return m.runLoop(ctx, start)
}

// RunFrom drives the activity loop starting directly at kind, bypassing
// Auth. Used by `termscp config` (spec §6), which the original termscp
// models as Task::Activity(NextActivity::SetupConfig) rather than
// routing through authentication.
func (m *Manager) RunFrom(ctx context.Context, kind Kind) int {
	return m.runLoop(ctx, NextActivity{Kind: kind})
}

func (m *Manager) runLoop(ctx context.Context, start NextActivity) int {
	current := start
	for current.Kind != KindTerminate {
		var act Activity
		switch current.Kind {
		case KindAuth:
			act = NewAuthActivity(m, current.Params)
		case KindFileTransfer:
			act = NewFileTransferActivity(m, current.Params)
		case KindSetupConfig:
			act = NewSetupConfigActivity(m)
		default:
			return current.ExitCode
		}
		current = act.Run(ctx)
	}
	return current.ExitCode
}

// poll is shared by every activity's loop: poll input if available,
// otherwise synthesize Tick events at TickInterval so views can animate
// even when Input is nil (e.g. headless test harnesses).
func (m *Manager) poll() tui.Event {
	if m.Input != nil {
		return m.Input.Poll()
	}
	time.Sleep(m.TickInterval)
	return tui.Event{Kind: tui.EventTick}
}
