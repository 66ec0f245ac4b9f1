// Package cli implements the iro command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/raysh454/iro/internal/app"
	"github.com/raysh454/iro/internal/logging"
)

// Options configure NewRootCommand. Zero values pick the production
// behaviour.
type Options struct {
	// NewApp builds the application once flags are parsed. Defaults to
	// app.NewApplication.
	NewApp func(cfg *app.Config, logger logging.Logger) (*app.Application, error)

	// EnvFile is the dotenv file read under the process environment.
	// Empty skips it.
	EnvFile string
}

// runtime is the state shared by every subcommand of one invocation.
type runtime struct {
	opts Options

	configPath string
	apiURL     string
	logLevel   string

	cfg    *app.Config
	app    *app.Application
	errOut io.Writer
}

// lockedWriter serializes writes from the logger and progress callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// NewRootCommand returns the iro command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.NewApp == nil {
		opts.NewApp = app.NewApplication
	}
	rt := &runtime{opts: opts}

	root := &cobra.Command{
		Use:   "iro",
		Short: "Upload, transform and download images through an image transformation service",
		Long: strings.TrimSpace(`
iro signs in to an image transformation backend, uploads local images, applies
up to five operations per image in batch or per-image mode and downloads the
results. It also browses and prunes the transformation history.
`),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rt.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rt.close()
		},
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&rt.apiURL, "api-url", "", "backend API root (overrides config)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newLoginCommand(rt),
		newRegisterCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newTransformCommand(rt),
		newHistoryCommand(rt),
		newDownloadCommand(rt),
		newServeCommand(rt),
	)
	return root
}

func (rt *runtime) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := app.LoadConfig(rt.configPath, rt.opts.EnvFile)
	if err != nil {
		return err
	}
	if rt.apiURL != "" {
		cfg.APIURL = strings.TrimSpace(rt.apiURL)
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt.errOut = &lockedWriter{w: cmd.ErrOrStderr()}
	logger := logging.NewWriterLogger("iro", rt.errOut, logging.ParseLevel(cfg.LogLevel))
	a, err := rt.opts.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	rt.cfg, rt.app = cfg, a
	logger.Debug("configuration loaded",
		logging.Field{Key: "api_url", Value: cfg.APIURL},
		logging.Field{Key: "webclient", Value: string(cfg.WebClient.Client)})
	return nil
}

func (rt *runtime) close() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	rt.app = nil
	return err
}

// Execute runs the command tree against args and returns the process exit
// code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(Options{EnvFile: ".env"})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	name := "iro"
	if cmd != nil && cmd != root {
		name += " " + cmd.Name()
	}
	fmt.Fprintf(stderr, "%s: %s\n", name, describe(err))
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}
