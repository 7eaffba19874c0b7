package config

import "os"

// GroupDirs controls where directories sort relative to files in a
// listing (spec §3).
type GroupDirs string

const (
	GroupDirsNone  GroupDirs = "none"
	GroupDirsFirst GroupDirs = "first"
	GroupDirsLast  GroupDirs = "last"
)

// Config is termscp's user preferences document, persisted as TOML
// (spec §3, §4.5).
type Config struct {
	TextEditor              string    `toml:"text_editor"`
	DefaultProtocol         string    `toml:"default_protocol"`
	ShowHiddenFiles         bool      `toml:"show_hidden_files"`
	GroupDirs               GroupDirs `toml:"group_dirs"`
	FileFmtString           string    `toml:"file_fmt_string"`
	LocalFileFmtString      string    `toml:"local_file_fmt_string,omitempty"`
	NotificationsEnabled    bool      `toml:"notifications_enabled"`
	NotificationThresholdMB int64     `toml:"notification_threshold_bytes"`
	SSHConfigPath           string    `toml:"ssh_config_path,omitempty"`
	PromptOnOverwrite       bool      `toml:"prompt_on_overwrite"`
}

// Default returns the documented default Config (spec §4.5: "missing
// fields take documented defaults").
func Default() Config {
	return Config{
		TextEditor:              defaultEditor(),
		DefaultProtocol:         "sftp",
		ShowHiddenFiles:         false,
		GroupDirs:               GroupDirsFirst,
		FileFmtString:           "{NAME} {SYMLINK} {SIZE} {MODTIME}",
		NotificationsEnabled:    true,
		NotificationThresholdMB: 10 * 1024 * 1024,
		PromptOnOverwrite:       true,
	}
}

func defaultEditor() string {
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return "vi"
}

// ConfigStore lazily loads and persists Config at the platform config
// directory, rewriting the whole document atomically on every mutation
// (spec §3 "Lifecycle", §4.5).
type ConfigStore struct {
	path   string
	loaded bool
	cfg    Config
}

// NewConfigStore creates a store rooted at the default platform config
// directory.
func NewConfigStore() (*ConfigStore, error) {
	dir, err := EnsureDir()
	if err != nil {
		return nil, err
	}
	return &ConfigStore{path: ConfigPath(dir)}, nil
}

// NewConfigStoreAt creates a store at an explicit file path, used by tests.
func NewConfigStoreAt(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// Get lazily loads Config on first access, falling back to defaults with
// forward-compatible handling of unknown/missing fields.
func (s *ConfigStore) Get() (Config, error) {
	if s.loaded {
		return s.cfg, nil
	}
	cfg := Default()
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.cfg = cfg
		s.loaded = true
		return s.cfg, nil
	}
	if err := loadTOML(s.path, &cfg); err != nil {
		if _, qerr := QuarantineCorrupt(s.path); qerr != nil {
			return Config{}, err
		}
		cfg = Default()
	}
	s.cfg = cfg
	s.loaded = true
	return s.cfg, nil
}

// Save persists cfg atomically and updates the in-memory cache.
func (s *ConfigStore) Save(cfg Config) error {
	lock, err := Lock(s.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	if err := saveAtomic(s.path, &cfg); err != nil {
		return err
	}
	s.cfg = cfg
	s.loaded = true
	return nil
}
