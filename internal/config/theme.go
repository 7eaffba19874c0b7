package config

import "os"

// ColorSlot names one of the fixed, enumerated theme color slots
// (spec §3).
type ColorSlot string

const (
	SlotAuthForeground           ColorSlot = "auth-foreground"
	SlotAuthBackground           ColorSlot = "auth-background"
	SlotMiscError                ColorSlot = "misc-error"
	SlotMiscWarn                 ColorSlot = "misc-warn"
	SlotMiscInfo                 ColorSlot = "misc-info"
	SlotMiscOK                   ColorSlot = "misc-ok"
	SlotTransferProgressBarFull  ColorSlot = "transfer-progress-bar-full"
	SlotTransferProgressBarEmpty ColorSlot = "transfer-progress-bar-empty"
	SlotExplorerLocalBg          ColorSlot = "explorer-local-bg"
	SlotExplorerRemoteBg         ColorSlot = "explorer-remote-bg"
	SlotExplorerHighlighted      ColorSlot = "explorer-highlighted"
)

// allSlots is the fixed enumeration; unknown names encountered on load
// are dropped with a warning, not a load failure (spec §4.5).
var allSlots = map[ColorSlot]struct{}{
	SlotAuthForeground: {}, SlotAuthBackground: {},
	SlotMiscError: {}, SlotMiscWarn: {}, SlotMiscInfo: {}, SlotMiscOK: {},
	SlotTransferProgressBarFull: {}, SlotTransferProgressBarEmpty: {},
	SlotExplorerLocalBg: {}, SlotExplorerRemoteBg: {}, SlotExplorerHighlighted: {},
}

// Theme maps color slot names to terminal color strings (e.g. a hex
// code or an ANSI color name — the TUI layer decides how to render it).
type Theme struct {
	Colors map[string]string `toml:"colors"`
}

// DefaultTheme returns termscp's built-in default palette.
func DefaultTheme() Theme {
	return Theme{Colors: map[string]string{
		string(SlotAuthForeground):           "White",
		string(SlotAuthBackground):           "Black",
		string(SlotMiscError):                "Red",
		string(SlotMiscWarn):                 "Yellow",
		string(SlotMiscInfo):                 "LightBlue",
		string(SlotMiscOK):                   "Green",
		string(SlotTransferProgressBarFull):  "Green",
		string(SlotTransferProgressBarEmpty): "Gray",
		string(SlotExplorerLocalBg):          "Black",
		string(SlotExplorerRemoteBg):         "Black",
		string(SlotExplorerHighlighted):      "Cyan",
	}}
}

// sanitize drops color entries whose slot name isn't one of the fixed
// enumerated slots, returning the count dropped.
func (t *Theme) sanitize() int {
	dropped := 0
	for name := range t.Colors {
		if _, ok := allSlots[ColorSlot(name)]; !ok {
			delete(t.Colors, name)
			dropped++
		}
	}
	return dropped
}

// ThemeStore lazily loads and persists Theme.
type ThemeStore struct {
	path     string
	loaded   bool
	theme    Theme
	Warnings []string // unknown slot names dropped on last load
}

func NewThemeStore() (*ThemeStore, error) {
	dir, err := EnsureDir()
	if err != nil {
		return nil, err
	}
	return &ThemeStore{path: ThemePath(dir)}, nil
}

func NewThemeStoreAt(path string) *ThemeStore {
	return &ThemeStore{path: path}
}

func (s *ThemeStore) Get() (Theme, error) {
	if s.loaded {
		return s.theme, nil
	}
	theme := DefaultTheme()
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.theme = theme
		s.loaded = true
		return s.theme, nil
	}
	loaded := Theme{Colors: map[string]string{}}
	if err := loadTOML(s.path, &loaded); err != nil {
		if _, qerr := QuarantineCorrupt(s.path); qerr != nil {
			return Theme{}, err
		}
		loaded = Theme{Colors: map[string]string{}}
	}
	// Merge over defaults: a theme file need not specify every slot.
	for k, v := range loaded.Colors {
		theme.Colors[k] = v
	}
	if dropped := theme.sanitize(); dropped > 0 {
		s.Warnings = append(s.Warnings, "dropped unknown theme slots")
	}
	s.theme = theme
	s.loaded = true
	return s.theme, nil
}

func (s *ThemeStore) Save(theme Theme) error {
	lock, err := Lock(s.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	if err := saveAtomic(s.path, &theme); err != nil {
		return err
	}
	s.theme = theme
	s.loaded = true
	return nil
}

// Import loads a theme file from an arbitrary path (spec §6:
// `termscp theme <path>`) and saves it as the active theme.
func (s *ThemeStore) Import(path string) error {
	theme := Theme{Colors: map[string]string{}}
	if err := loadTOML(path, &theme); err != nil {
		return err
	}
	merged := DefaultTheme()
	for k, v := range theme.Colors {
		merged.Colors[k] = v
	}
	if merged.sanitize() > 0 {
		s.Warnings = append(s.Warnings, "dropped unknown theme slots")
	}
	return s.Save(merged)
}
