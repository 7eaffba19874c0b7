package tui

import (
	"os"
	"time"

	"golang.org/x/term"
)

// KeyCode names one decoded key, independent of the raw bytes a
// terminal sent for it.
type KeyCode int

const (
	KeyNone KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyBackspace
	KeyTab
	KeyShiftTab
	KeySpace
	KeyEsc
	KeyCtrlC
	KeyRune
)

// Key is one decoded keypress. Rune is only meaningful when Code is
// KeyRune.
type Key struct {
	Code KeyCode
	Rune rune
}

// EventKind distinguishes a keypress from an idle tick (spec §4.3).
type EventKind int

const (
	EventTick EventKind = iota
	EventKey
)

// Event is what the dispatcher's Handle methods receive: either a
// decoded keypress or a periodic Tick fired every tick_interval even
// when no input arrived, so the view can animate and background
// transfers can refresh (spec §4.3).
type Event struct {
	Kind EventKind
	Key  Key
}

// InputSource polls the terminal in raw mode, decoding bytes into Key
// events and firing EventTick when tick_interval elapses with nothing
// typed. Grounded on the teacher's golang.org/x/term usage for raw
// terminal control (internal/progress/downloadui.go's IsTerminal check)
// generalized from "detect a TTY for progress bars" to "read raw
// keystrokes for the event loop".
type InputSource struct {
	fd       int
	oldState *term.State
	tick     time.Duration
	bytes    chan byte
}

// NewInputSource puts fd (normally os.Stdin) into raw mode and starts
// the background read loop. Callers must call Close to restore the
// terminal.
func NewInputSource(tick time.Duration) (*InputSource, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	s := &InputSource{fd: fd, oldState: old, tick: tick, bytes: make(chan byte, 32)}
	go s.readLoop()
	return s, nil
}

// Close restores the terminal's original mode.
func (s *InputSource) Close() error {
	return term.Restore(s.fd, s.oldState)
}

func (s *InputSource) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			close(s.bytes)
			return
		}
		if n > 0 {
			s.bytes <- buf[0]
		}
	}
}

// Poll blocks until a key is decoded or tick_interval elapses,
// implementing spec §4.3's "event = input.poll(tick_interval)".
func (s *InputSource) Poll() Event {
	select {
	case b, ok := <-s.bytes:
		if !ok {
			return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
		}
		return s.decode(b)
	case <-time.After(s.tick):
		return Event{Kind: EventTick}
	}
}

// escSeqTimeout bounds how long decode waits for the rest of an ANSI
// escape sequence before treating the lone ESC byte as a plain Esc key.
const escSeqTimeout = 10 * time.Millisecond

func (s *InputSource) decode(b byte) Event {
	switch b {
	case '\r', '\n':
		return Event{Kind: EventKey, Key: Key{Code: KeyEnter}}
	case 127, 8:
		return Event{Kind: EventKey, Key: Key{Code: KeyBackspace}}
	case '\t':
		return Event{Kind: EventKey, Key: Key{Code: KeyTab}}
	case ' ':
		return Event{Kind: EventKey, Key: Key{Code: KeySpace}}
	case 3:
		return Event{Kind: EventKey, Key: Key{Code: KeyCtrlC}}
	case 27:
		return s.decodeEscape()
	default:
		return Event{Kind: EventKey, Key: Key{Code: KeyRune, Rune: rune(b)}}
	}
}

func (s *InputSource) decodeEscape() Event {
	select {
	case b2, ok := <-s.bytes:
		if !ok || b2 != '[' {
			return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
		}
	case <-time.After(escSeqTimeout):
		return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
	}
	select {
	case b3, ok := <-s.bytes:
		if !ok {
			return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
		}
		switch b3 {
		case 'A':
			return Event{Kind: EventKey, Key: Key{Code: KeyUp}}
		case 'B':
			return Event{Kind: EventKey, Key: Key{Code: KeyDown}}
		case 'C':
			return Event{Kind: EventKey, Key: Key{Code: KeyRight}}
		case 'D':
			return Event{Kind: EventKey, Key: Key{Code: KeyLeft}}
		case 'Z':
			return Event{Kind: EventKey, Key: Key{Code: KeyShiftTab}}
		default:
			return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
		}
	case <-time.After(escSeqTimeout):
		return Event{Kind: EventKey, Key: Key{Code: KeyEsc}}
	}
}
