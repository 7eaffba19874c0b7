package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/termscp/internal/config"
)

// newThemeCmd implements `termscp theme <path>` (spec §6): import a TOML
// theme file into the persisted theme store, replacing the current one.
//
// Grounded on the original termscp's run_import_theme/support::import_theme
// (print a one-line result, exit 0 on success / 1 on failure).
func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "theme <path>",
		Short: "Import a theme file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.EnsureDir()
			if err != nil {
				return runtimeErrorf("could not create config directory: %s", err)
			}
			themeStore := config.NewThemeStoreAt(config.ThemePath(dir))
			if err := themeStore.Import(args[0]); err != nil {
				return runtimeErrorf("could not import theme %q: %s", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "theme imported from %s\n", args[0])
			return nil
		},
	}
}
