package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newUpdateCmd implements `termscp update` (spec §6). The update
// installer itself is treated as an opaque external concern (spec's
// Non-goals list it alongside the TUI toolkit and transport libraries);
// no update/download library is wired into this module, so this reports
// the running version and defers the actual install to the user's
// package manager, matching the original's run_install_update in spirit
// (a thin wrapper printing a result and returning 0/1) without
// reimplementing its self-replacing installer.
func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Report the running version (no update installer is configured)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "termscp %s: no update installer configured; reinstall via your package manager\n", Version)
			return nil
		},
	}
}
