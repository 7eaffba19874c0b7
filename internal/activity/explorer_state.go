package activity

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rescale-labs/termscp/internal/events"
	"github.com/rescale-labs/termscp/internal/fsentry"
)

// Explorer-pane events, published on the manager's shared EventBus so
// the view can redraw without the Manager reaching into pane state
// directly (spec §9's "avoid cyclic references" design note).
//
// Grounded on the teacher's internal/state/types.go
// (FileListChangedEvent/SelectionChangedEvent/CurrentPathChangedEvent),
// adapted from services.FileItem to fsentry.Entry.
const (
	EventPaneChanged     events.EventType = "pane_changed"
	EventPaneSelection   events.EventType = "pane_selection"
	EventPaneError       events.EventType = "pane_error"
	EventPaneLoading     events.EventType = "pane_loading"
	EventPanePathChanged events.EventType = "pane_path_changed"
)

// PaneChangedEvent is published whenever a pane's listing is replaced.
type PaneChangedEvent struct {
	events.BaseEvent
	Pane  string // "local" or "remote"
	Path  string
	Items []fsentry.Entry
}

// PaneErrorEvent is published when a pane's ListDir fails.
type PaneErrorEvent struct {
	events.BaseEvent
	Pane string
	Err  error
}

func newPaneChanged(pane, path string, items []fsentry.Entry) *PaneChangedEvent {
	return &PaneChangedEvent{BaseEvent: events.BaseEvent{EventType: EventPaneChanged, Time: time.Now()}, Pane: pane, Path: path, Items: items}
}

func newPaneError(pane string, err error) *PaneErrorEvent {
	return &PaneErrorEvent{BaseEvent: events.BaseEvent{EventType: EventPaneError, Time: time.Now()}, Pane: pane, Err: err}
}

// ExplorerPane is one side (Local or Remote) of the FileTransfer
// activity's two-pane browser: an ordered listing, a cursor, and a
// multi-select set, all addressed by entry name within the current
// directory (spec §4.3 "two panes (Local, Remote)").
//
// Grounded on the teacher's internal/state.FileListState, collapsed
// from folder-ID-keyed cloud listings to path-keyed fsentry.Entry
// listings, and from string-ID selection to name-keyed selection since
// FileTransfer backends address children by name, not by opaque ID.
type ExplorerPane struct {
	name     string // "local" or "remote"
	eventBus *events.EventBus

	mu          sync.RWMutex
	path        string
	items       []fsentry.Entry
	cursor      int
	selected    map[string]bool
	showHidden  bool
	filter      string
	sortAsc     bool
}

// NewExplorerPane creates an empty pane named "local" or "remote".
func NewExplorerPane(name string, bus *events.EventBus) *ExplorerPane {
	return &ExplorerPane{name: name, eventBus: bus, selected: make(map[string]bool), sortAsc: true}
}

// SetItems replaces the pane's listing for path, applying the current
// hidden-file/filter settings and directories-first-then-name sort, and
// publishes PaneChangedEvent.
func (p *ExplorerPane) SetItems(path string, items []fsentry.Entry) {
	p.mu.Lock()
	p.path = path
	p.items = filterEntries(items, p.showHidden, p.filter)
	sortEntries(p.items, p.sortAsc)
	if p.cursor >= len(p.items) {
		p.cursor = 0
	}
	p.selected = make(map[string]bool)
	visible := append([]fsentry.Entry(nil), p.items...)
	p.mu.Unlock()

	if p.eventBus != nil {
		p.eventBus.Publish(newPaneChanged(p.name, path, visible))
	}
}

// SetError records a listing failure and publishes PaneErrorEvent.
func (p *ExplorerPane) SetError(err error) {
	if p.eventBus != nil && err != nil {
		p.eventBus.Publish(newPaneError(p.name, err))
	}
}

// SetShowHidden toggles dotfile visibility (spec §4.3 "H toggle
// hidden"); the caller must re-list and SetItems to apply it.
func (p *ExplorerPane) SetShowHidden(show bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showHidden = show
}

func (p *ExplorerPane) ShowHidden() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.showHidden
}

// SetFilter sets the name substring filter (spec §4.3 "/ filter"); the
// caller must re-list and SetItems to apply it.
func (p *ExplorerPane) SetFilter(substr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = substr
}

func (p *ExplorerPane) Path() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path
}

func (p *ExplorerPane) Items() []fsentry.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]fsentry.Entry(nil), p.items...)
}

// MoveCursor moves the selection cursor by delta, clamped to bounds.
func (p *ExplorerPane) MoveCursor(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return
	}
	p.cursor += delta
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor >= len(p.items) {
		p.cursor = len(p.items) - 1
	}
}

// Current returns the entry under the cursor, or false if the pane is
// empty.
func (p *ExplorerPane) Current() (fsentry.Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return fsentry.Entry{}, false
	}
	return p.items[p.cursor], true
}

// ToggleSelect toggles multi-select on the entry under the cursor
// (spec §4.3 "Space toggles multi-select").
func (p *ExplorerPane) ToggleSelect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return
	}
	name := p.items[p.cursor].Name
	if p.selected[name] {
		delete(p.selected, name)
	} else {
		p.selected[name] = true
	}
}

// Selected returns the selected entries, or the entry under the cursor
// if nothing is explicitly selected (single-item actions need no
// explicit Space press).
func (p *ExplorerPane) Selected() []fsentry.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.selected) == 0 {
		if p.cursor >= 0 && p.cursor < len(p.items) {
			return []fsentry.Entry{p.items[p.cursor]}
		}
		return nil
	}
	out := make([]fsentry.Entry, 0, len(p.selected))
	for _, e := range p.items {
		if p.selected[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

func (p *ExplorerPane) ClearSelection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = make(map[string]bool)
}

func filterEntries(items []fsentry.Entry, showHidden bool, filter string) []fsentry.Entry {
	out := make([]fsentry.Entry, 0, len(items))
	for _, e := range items {
		if !showHidden && strings.HasPrefix(e.Name, ".") {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(filter)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortEntries(items []fsentry.Entry, ascending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		less := strings.ToLower(a.Name) < strings.ToLower(b.Name)
		if ascending {
			return less
		}
		return !less
	})
}
