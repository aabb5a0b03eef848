package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zot/modrt/internal/bundle"
	"github.com/zot/modrt/internal/config"
	"github.com/zot/modrt/internal/lua"
	"github.com/zot/modrt/internal/modname"
	"github.com/zot/modrt/internal/server"
)

// withRuntime loads the config, runs fn with a runtime built from it and
// shuts the runtime down afterwards.
func withRuntime(cmd *cobra.Command, fn func(rt *lua.Runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := lua.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Shutdown()
	return fn(rt)
}

// nameAndVersion splits NAME [VERSION] arguments.
func nameAndVersion(args []string) (string, string) {
	if len(args) > 1 {
		return args[0], args[1]
	}
	return args[0], ""
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check NAME...",
		Short: "Check that each argument is a valid module name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed bool
			for _, name := range args {
				if err := modname.CheckModuleName(name); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					failed = true
				}
			}
			if failed {
				return &ExitError{Code: ExitFailure}
			}
			return nil
		},
	}
}

func newFilenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filename NAME...",
		Short: "Print the relative path each module is loaded from",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				path, err := modname.NotionalFilename(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

func newRequireCmd() *cobra.Command {
	var file bool
	cmd := &cobra.Command{
		Use:   "require NAME...",
		Short: "Load modules and print what each returned as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *lua.Runtime) error {
				for _, arg := range args {
					var v any
					var err error
					if file {
						v, err = rt.RequireFileValue(arg)
					} else {
						v, err = rt.RequireValue(arg)
					}
					if err != nil {
						return err
					}
					if err := printJSON(cmd, v); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&file, "file", "f", false, "Arguments are paths rather than module names")
	return cmd
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME [VERSION]",
		Short: "Load a module, failing if it is missing, broken or too old",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *lua.Runtime) error {
				name, err := rt.UseModule(nameAndVersion(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	}
}

func newOptimisticCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimistic NAME [VERSION]",
		Short: "Load a module if it is installed; a missing module is not an error",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *lua.Runtime) error {
				name, err := rt.UsePackageOptimistically(nameAndVersion(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	}
}

func newTryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "try NAME [VERSION]",
		Short: "Report whether a module is installed and new enough",
		Long: `Try loads a module if it is installed. It prints true and exits 0 when the
module loaded and satisfies VERSION, prints false and exits 2 when the module
is not installed or too old, and fails when the module is broken.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *lua.Runtime) error {
				ok, err := rt.TryRequireModule(nameAndVersion(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				if !ok {
					return &ExitError{Code: ExitFalse}
				}
				return nil
			})
		},
	}
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the module search path, one entry per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sources, err := lua.SourcesFromConfig(cfg)
			if err != nil {
				return err
			}
			for _, src := range sources {
				fmt.Fprintln(cmd.OutOrStdout(), src)
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the runtime over MCP on stdio, or over HTTP with --http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Server.HTTP = httpAddr
			}
			return runServe(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Listen address for MCP, /metrics and /healthz (e.g. :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			cfg.Log(0, "shutdown: %v", err)
		}
	}

	if cfg.Server.HTTP == "" {
		defer shutdown()
		return srv.Start()
	}

	url, err := srv.StartHTTP(cfg.Server.HTTP)
	if err != nil {
		srv.Shutdown(context.Background())
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "serving on %s\n", url)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	cfg.Log(1, "Shutting down...")
	shutdown()
	return nil
}

func newBundleCmd() *cobra.Command {
	var output, from string
	cmd := &cobra.Command{
		Use:   "bundle DIR -o OUTPUT",
		Short: "Create a copy of the binary with the modules under DIR bundled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("bundle: -o OUTPUT is required")
			}
			if from == "" {
				exe, err := os.Executable()
				if err != nil {
					return err
				}
				from = exe
			}
			if err := bundle.CreateBundle(from, args[0], output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundled %s into %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Path of the bundled binary")
	cmd.Flags().StringVar(&from, "from", "", "Binary to copy (default this executable)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "extract DIR",
		Short: "Extract the bundled modules to DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" {
				exe, err := os.Executable()
				if err != nil {
					return err
				}
				from = exe
			}
			if err := bundle.ExtractBundle(from, args[0]); err != nil {
				if errors.Is(err, bundle.ErrNotBundled) {
					return fmt.Errorf("%s: %w", from, err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Bundled binary to read (default this executable)")
	return cmd
}
