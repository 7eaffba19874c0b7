// Package cli implements termscp's command-line surface (spec §6):
// global flags, the bare `[address] [localdir]` invocation that starts
// the activity manager, and the config/theme/update subcommands.
//
// Grounded on the teacher's internal/cli/root.go cobra wiring (root
// command, persistent flags, Execute()), collapsed from rescale-int's
// many resource subcommands to termscp's much smaller surface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale-labs/termscp/internal/activity"
	"github.com/rescale-labs/termscp/internal/bookmarks"
	"github.com/rescale-labs/termscp/internal/config"
	"github.com/rescale-labs/termscp/internal/crypto"
	"github.com/rescale-labs/termscp/internal/events"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/logging"
	"github.com/rescale-labs/termscp/internal/pathutil"
)

// Version is set by the linker at build time; it falls back to this
// placeholder for `go run`/unflagged builds.
var Version = "v0.1.0-dev"

// Exit codes (spec §6): 0 success, 1 runtime failure, 255 argument/parse
// failure.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 255
)

// exitCodeError lets a RunE return both a message and the exact exit
// code spec §6 assigns it, instead of cobra's blanket exit-1-on-error.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitCodeError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

func runtimeErrorf(format string, args ...any) error {
	return &exitCodeError{code: ExitFailure, err: fmt.Errorf(format, args...)}
}

// cliFlags holds every global flag's destination variable (spec §6).
type cliFlags struct {
	version           bool
	debug             bool
	quiet             bool
	ticksMs           int
	password          string
	securePassword    string
	addressAsBookmark bool
}

// NewRootCmd builds the root command. Exposed (rather than folded into
// Execute) so tests can invoke it without touching os.Args/os.Exit.
func NewRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "termscp [flags] [address] [localdir]",
		Short:         "A feature rich terminal file transfer client",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefault(cmd.Context(), flags, args)
		},
	}

	root.PersistentFlags().BoolVarP(&flags.version, "version", "v", false, "print version and exit")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable trace-level logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "disable logging entirely")
	root.PersistentFlags().IntVarP(&flags.ticksMs, "ticks", "t", 10, "event loop tick interval in milliseconds")
	root.PersistentFlags().StringVarP(&flags.password, "password", "P", "", "password for the remote address")
	root.PersistentFlags().StringVarP(&flags.securePassword, "secure-password", "s", "", "sealed (base64) password for the remote address")
	root.PersistentFlags().BoolVarP(&flags.addressAsBookmark, "address-as-bookmark", "b", false, "treat [address] as a saved bookmark name")

	root.AddCommand(newConfigCmd())
	root.AddCommand(newThemeCmd())
	root.AddCommand(newUpdateCmd())

	return root
}

// Execute parses os.Args and runs the selected command, returning the
// process exit code spec §6 specifies (0/1/255).
func Execute() int {
	root := NewRootCmd()
	root.SetArgs(os.Args[1:])

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return ExitSuccess
	}
	var ec *exitCodeError
	if e, ok := err.(*exitCodeError); ok {
		ec = e
	} else {
		// cobra's own argument/flag errors (unknown flag, too many
		// positionals, ...) are parse failures (spec §6).
		ec = &exitCodeError{code: ExitUsage, err: err}
	}
	fmt.Fprintln(os.Stderr, ec.err)
	return ec.code
}

// runDefault implements the bare `termscp [flags] [address] [localdir]`
// invocation (spec §6): resolve the password, parse the optional
// address, resolve the optional local directory, and hand off to the
// activity manager.
//
// Grounded on the original termscp's main.rs::parse_args/run_activity,
// re-expressed in the teacher's cobra-RunE idiom.
func runDefault(ctx context.Context, flags *cliFlags, args []string) error {
	if flags.version {
		// Matches the original termscp: -v short-circuits through the
		// same error path as an argument parse failure, so it exits 255.
		return usageErrorf("termscp %s", Version)
	}

	password, err := resolvePassword(flags)
	if err != nil {
		return usageErrorf("%s", err)
	}

	bk, cfgStore, themeStore, bus, logger, err := newStores(flags)
	if err != nil {
		return runtimeErrorf("could not initialize: %s", err)
	}

	var initialParams *filetransfer.FileTransferParams
	if len(args) > 0 {
		params, err := resolveRemote(bk, args[0], flags.addressAsBookmark, password)
		if err != nil {
			return usageErrorf("%s", err)
		}
		initialParams = &params
	}

	localDir := ""
	if len(args) > 1 {
		resolved, err := pathutil.ResolveAbsolutePath(args[1])
		if err != nil {
			return usageErrorf("bad working directory argument: %s", err)
		}
		localDir = resolved
	}

	mgr := activity.NewManager(bk, cfgStore, themeStore, logger, bus)
	mgr.TickInterval = time.Duration(flags.ticksMs) * time.Millisecond
	mgr.LocalEntryDirectory = localDir
	if initialParams != nil {
		initialParams.LocalEntryDirectory = localDir
	}

	code := mgr.Run(ctx, initialParams)
	if code != ExitSuccess {
		return &exitCodeError{code: code, err: fmt.Errorf("termscp exited with code %d", code)}
	}
	return nil
}

// resolvePassword decrypts --secure-password if given, else returns
// --password verbatim (spec §6; original termscp exits 255 on a bad
// sealed password before any other argument is processed).
func resolvePassword(flags *cliFlags) (string, error) {
	if flags.securePassword == "" {
		return flags.password, nil
	}
	cleartext, err := encryption.Unseal(flags.securePassword)
	if err != nil {
		return "", fmt.Errorf("could not decrypt secure password: %w", err)
	}
	return cleartext, nil
}

// resolveRemote turns the [address] positional into connection params,
// either by loading a named bookmark (-b) or by parsing it as an
// address grammar string (spec §6).
func resolveRemote(bk *bookmarks.Store, raw string, asBookmark bool, password string) (filetransfer.FileTransferParams, error) {
	if asBookmark {
		params, err := bk.Load(raw)
		if err != nil {
			return filetransfer.FileTransferParams{}, err
		}
		if password != "" && params.Generic != nil {
			params.Generic.Secret = password
		}
		return params, nil
	}
	params, err := ParseAddress(raw)
	if err != nil {
		return filetransfer.FileTransferParams{}, err
	}
	if password != "" {
		if params.Generic != nil {
			params.Generic.Secret = password
		} else if params.S3 != nil {
			params.S3.SecretKey = password
		}
	}
	return params, nil
}

// newStores opens the persisted Config/Theme/Bookmarks stores and wires
// up the process-wide logger and event bus (spec §4.3, §9).
func newStores(flags *cliFlags) (*bookmarks.Store, *config.ConfigStore, *config.ThemeStore, *events.EventBus, *logging.Logger, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	bk, err := bookmarks.NewStore()
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	cfgStore := config.NewConfigStoreAt(config.ConfigPath(dir))
	themeStore := config.NewThemeStoreAt(config.ThemePath(dir))

	bus := events.NewEventBus(256)

	if flags.debug {
		logging.SetGlobalLevel(zerolog.TraceLevel)
	}

	if flags.quiet {
		return bk, cfgStore, themeStore, bus, logging.New(io.Discard, nil), nil
	}
	logger, err := logging.NewFileLogger(filepath.Join(dir, "termscp.log"), bus)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	return bk, cfgStore, themeStore, bus, logger, nil
}
