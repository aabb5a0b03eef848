// Package cli provides the command-line interface for modrt.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zot/modrt/internal/config"
)

// Version is the modrt version (set via -ldflags).
var Version = "0.1.0"

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitFalse   = 2 // try found the module missing or too old
)

// Hooks allows extending the CLI with additional commands.
type Hooks struct {
	// BeforeDispatch is called before command dispatch.
	// Return (handled=true, exitCode) to skip normal dispatch.
	BeforeDispatch func(command string, args []string) (handled bool, exitCode int)

	// Commands are added to the root command.
	Commands []*cobra.Command

	// CustomHelp returns additional help text to append.
	CustomHelp func() string

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	if len(args) > 0 && hooks != nil && hooks.BeforeDispatch != nil {
		if handled, code := hooks.BeforeDispatch(args[0], args[1:]); handled {
			return code
		}
	}

	root := newRootCmd(hooks, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return exitCode(root.Execute(), os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "modrt: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "modrt: %v\n", err)
	return ExitFailure
}

func newRootCmd(hooks *Hooks, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "modrt",
		Short: "Load modules by name from a search path",
		Long: `modrt loads module files by name, at most once each, from an ordered
search path of directories and an optional bundle appended to the binary.

A module name such as Foo::Bar is loaded from Foo/Bar.pm. A file is only
run once; a file that fails to load runs again on the next attempt.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root.PersistentFlags())

	if hooks != nil && hooks.CustomHelp != nil {
		root.Long += "\n\n" + hooks.CustomHelp()
	}
	if hooks != nil && hooks.CustomVersion != nil {
		root.SetVersionTemplate("modrt {{.Version}}\n" + hooks.CustomVersion() + "\n")
	}

	root.AddCommand(
		newCheckCmd(),
		newFilenameCmd(),
		newRequireCmd(),
		newUseCmd(),
		newOptimisticCmd(),
		newTryCmd(),
		newPathCmd(),
		newServeCmd(),
		newBundleCmd(),
		newExtractCmd(),
	)
	if hooks != nil {
		root.AddCommand(hooks.Commands...)
	}
	return root
}

// loadConfig reads the config file named by --config (or the default) and
// applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg.SetLogOutput(cmd.ErrOrStderr())
	return cfg, nil
}
