package activity

import (
	"context"
	"strconv"

	"github.com/rescale-labs/termscp/internal/config"
	"github.com/rescale-labs/termscp/internal/tui"
)

// setupMsg is the message set the SetupConfig activity's fields emit.
type setupMsg int

const (
	setupNone setupMsg = iota
	setupFocusNext
	setupFocusPrev
	setupToggle
	setupCycle
	setupSave
	setupQuit
)

// configField names one editable Config field, in tab order
// (spec §4.5 "editable at runtime via the SetupConfig activity").
type configField int

const (
	fieldTextEditor configField = iota
	fieldDefaultProtocol
	fieldShowHidden
	fieldGroupDirs
	fieldFileFmtString
	fieldLocalFileFmtString
	fieldNotificationsEnabled
	fieldNotificationThresholdMB
	fieldSSHConfigPath
	fieldPromptOnOverwrite
)

var configFieldOrder = []configField{
	fieldTextEditor, fieldDefaultProtocol, fieldShowHidden, fieldGroupDirs,
	fieldFileFmtString, fieldLocalFileFmtString, fieldNotificationsEnabled,
	fieldNotificationThresholdMB, fieldSSHConfigPath, fieldPromptOnOverwrite,
}

func configFieldName(f configField) string {
	switch f {
	case fieldTextEditor:
		return "text_editor"
	case fieldDefaultProtocol:
		return "default_protocol"
	case fieldShowHidden:
		return "show_hidden"
	case fieldGroupDirs:
		return "group_dirs"
	case fieldFileFmtString:
		return "file_fmt_string"
	case fieldLocalFileFmtString:
		return "local_file_fmt_string"
	case fieldNotificationsEnabled:
		return "notifications_enabled"
	case fieldNotificationThresholdMB:
		return "notification_threshold_mb"
	case fieldSSHConfigPath:
		return "ssh_config_path"
	case fieldPromptOnOverwrite:
		return "prompt_on_overwrite"
	default:
		return "unknown"
	}
}

// isToggleField reports whether a field is edited by toggling (booleans,
// the GroupDirs enum) rather than by typing text.
func isToggleField(f configField) bool {
	switch f {
	case fieldShowHidden, fieldGroupDirs, fieldNotificationsEnabled, fieldPromptOnOverwrite:
		return true
	}
	return false
}

// configFieldComponent decodes keystrokes for one field. Text fields
// accumulate runes/backspace; toggle fields cycle on Enter/Space.
type configFieldComponent struct {
	field configField
	state *setupFormState
}

func (c *configFieldComponent) Handle(ev tui.Event) []tui.Message {
	if ev.Kind != tui.EventKey {
		return nil
	}
	switch ev.Key.Code {
	case tui.KeyTab, tui.KeyDown:
		return []tui.Message{setupFocusNext}
	case tui.KeyShiftTab, tui.KeyUp:
		return []tui.Message{setupFocusPrev}
	case tui.KeyCtrlC, tui.KeyEsc:
		return []tui.Message{setupQuit}
	}
	if isToggleField(c.field) {
		switch ev.Key.Code {
		case tui.KeyEnter, tui.KeySpace, tui.KeyLeft, tui.KeyRight:
			c.state.cycle(c.field)
		}
		return nil
	}
	switch ev.Key.Code {
	case tui.KeyBackspace:
		v := c.state.values[c.field]
		if len(v) > 0 {
			c.state.values[c.field] = v[:len(v)-1]
		}
	case tui.KeyRune:
		c.state.values[c.field] += string(ev.Key.Rune)
	}
	return nil
}

// setupFormState holds the in-progress edits, seeded from the current
// Config and only written back to the store on explicit save (spec §4.5:
// config mutations are atomic, not streamed on every keystroke).
type setupFormState struct {
	values map[configField]string
}

func newSetupFormState(cfg config.Config) *setupFormState {
	s := &setupFormState{values: make(map[configField]string)}
	s.values[fieldTextEditor] = cfg.TextEditor
	s.values[fieldDefaultProtocol] = cfg.DefaultProtocol
	s.values[fieldShowHidden] = strconv.FormatBool(cfg.ShowHiddenFiles)
	s.values[fieldGroupDirs] = string(cfg.GroupDirs)
	s.values[fieldFileFmtString] = cfg.FileFmtString
	s.values[fieldLocalFileFmtString] = cfg.LocalFileFmtString
	s.values[fieldNotificationsEnabled] = strconv.FormatBool(cfg.NotificationsEnabled)
	s.values[fieldNotificationThresholdMB] = strconv.FormatInt(cfg.NotificationThresholdMB/(1024*1024), 10)
	s.values[fieldSSHConfigPath] = cfg.SSHConfigPath
	s.values[fieldPromptOnOverwrite] = strconv.FormatBool(cfg.PromptOnOverwrite)
	return s
}

// cycle advances a toggle field to its next value.
func (s *setupFormState) cycle(f configField) {
	switch f {
	case fieldShowHidden, fieldNotificationsEnabled, fieldPromptOnOverwrite:
		cur, _ := strconv.ParseBool(s.values[f])
		s.values[f] = strconv.FormatBool(!cur)
	case fieldGroupDirs:
		order := []config.GroupDirs{config.GroupDirsNone, config.GroupDirsFirst, config.GroupDirsLast}
		cur := config.GroupDirs(s.values[f])
		idx := 0
		for i, v := range order {
			if v == cur {
				idx = i
				break
			}
		}
		s.values[f] = string(order[(idx+1)%len(order)])
	}
}

// apply builds a Config from the form state, falling back to base for
// any numeric field left unparsable.
func (s *setupFormState) apply(base config.Config) config.Config {
	cfg := base
	cfg.TextEditor = s.values[fieldTextEditor]
	cfg.DefaultProtocol = s.values[fieldDefaultProtocol]
	if b, err := strconv.ParseBool(s.values[fieldShowHidden]); err == nil {
		cfg.ShowHiddenFiles = b
	}
	cfg.GroupDirs = config.GroupDirs(s.values[fieldGroupDirs])
	cfg.FileFmtString = s.values[fieldFileFmtString]
	cfg.LocalFileFmtString = s.values[fieldLocalFileFmtString]
	if b, err := strconv.ParseBool(s.values[fieldNotificationsEnabled]); err == nil {
		cfg.NotificationsEnabled = b
	}
	if mb, err := strconv.ParseInt(s.values[fieldNotificationThresholdMB], 10, 64); err == nil {
		cfg.NotificationThresholdMB = mb * 1024 * 1024
	}
	cfg.SSHConfigPath = s.values[fieldSSHConfigPath]
	if b, err := strconv.ParseBool(s.values[fieldPromptOnOverwrite]); err == nil {
		cfg.PromptOnOverwrite = b
	}
	return cfg
}

// actionsComponent is the form's trailing focus stop: Enter saves and
// exits, Esc/Ctrl-C exits without saving (spec §4.5 "SetupConfig exits
// back to Terminate").
type actionsComponent struct{}

func (actionsComponent) Handle(ev tui.Event) []tui.Message {
	if ev.Kind != tui.EventKey {
		return nil
	}
	switch ev.Key.Code {
	case tui.KeyEnter:
		return []tui.Message{setupSave}
	case tui.KeyTab, tui.KeyDown:
		return []tui.Message{setupFocusNext}
	case tui.KeyShiftTab, tui.KeyUp:
		return []tui.Message{setupFocusPrev}
	case tui.KeyCtrlC, tui.KeyEsc:
		return []tui.Message{setupQuit}
	}
	return nil
}

const actionsFocusName = "actions"

// SetupConfigActivity is the spec §4.3/§4.5 "SetupConfig" activity: an
// interactive form over Config, saved atomically on exit-with-save.
//
// Grounded on Auth's textComponent/toggle pattern in auth.go, reused
// here for a flat field list instead of a connection form.
type SetupConfigActivity struct {
	mgr   *Manager
	state *setupFormState
	err   error
}

// NewSetupConfigActivity seeds the form from the current on-disk Config.
func NewSetupConfigActivity(mgr *Manager) *SetupConfigActivity {
	cfg, _ := mgr.Config.Get()
	return &SetupConfigActivity{mgr: mgr, state: newSetupFormState(cfg)}
}

func (a *SetupConfigActivity) Run(ctx context.Context) NextActivity {
	names := make([]string, 0, len(configFieldOrder)+1)
	for _, f := range configFieldOrder {
		names = append(names, configFieldName(f))
	}
	names = append(names, actionsFocusName)

	disp := tui.NewDispatcher(tui.NewFocusChain(names...))
	for _, f := range configFieldOrder {
		disp.Register(configFieldName(f), &configFieldComponent{field: f, state: a.state})
	}
	disp.Register(actionsFocusName, actionsComponent{})

	for {
		ev := a.mgr.poll()
		msgs := disp.Dispatch(ev)
		for _, m := range msgs {
			switch m.(setupMsg) {
			case setupFocusNext:
				disp.Focus().Next()
			case setupFocusPrev:
				disp.Focus().Prev()
			case setupSave:
				a.save()
				return NextActivity{Kind: KindTerminate, ExitCode: boolToExit(a.err != nil)}
			case setupQuit:
				return NextActivity{Kind: KindTerminate, ExitCode: boolToExit(a.err != nil)}
			}
		}
	}
}

func (a *SetupConfigActivity) save() {
	cfg, _ := a.mgr.Config.Get()
	a.err = a.mgr.Config.Save(a.state.apply(cfg))
}

func boolToExit(failed bool) int {
	if failed {
		return 1
	}
	return 0
}
