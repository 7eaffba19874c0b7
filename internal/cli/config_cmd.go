package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/termscp/internal/activity"
	"github.com/rescale-labs/termscp/internal/bookmarks"
	"github.com/rescale-labs/termscp/internal/config"
	"github.com/rescale-labs/termscp/internal/events"
)

// newConfigCmd implements `termscp config` (spec §6): enter the
// SetupConfig activity directly, skipping Auth — matches the original
// termscp's RunOpts::config() task.
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Edit termscp configuration interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bk, err := bookmarks.NewStore()
			if err != nil {
				return runtimeErrorf("could not open bookmarks store: %s", err)
			}
			dir, err := config.EnsureDir()
			if err != nil {
				return runtimeErrorf("could not create config directory: %s", err)
			}
			cfgStore := config.NewConfigStoreAt(config.ConfigPath(dir))
			themeStore := config.NewThemeStoreAt(config.ThemePath(dir))
			bus := events.NewEventBus(256)

			mgr := activity.NewManager(bk, cfgStore, themeStore, nil, bus)
			if code := mgr.RunFrom(cmd.Context(), activity.KindSetupConfig); code != ExitSuccess {
				return &exitCodeError{code: code, err: fmt.Errorf("config edit did not complete successfully")}
			}
			return nil
		},
	}
}
