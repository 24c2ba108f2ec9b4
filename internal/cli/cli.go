package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/amberrun/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// usageArgs turns argument count errors into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

type options struct {
	logLevel  string
	logFormat string
	stateFile string
	force     bool

	outW io.Writer
	errW io.Writer
	app  *app.App
}

// NewRootCommand builds the amberrun command tree. Reports are written to
// outW, logs and help for failed invocations to errW. Flag defaults come
// from the AMBERRUN_* environment.
func NewRootCommand(outW, errW io.Writer) (*cobra.Command, error) {
	envCfg, err := app.ConfigFromEnv()
	if err != nil {
		return nil, usageError(err)
	}
	o := &options{outW: outW, errW: errW}

	root := &cobra.Command{
		Use:   "amberrun",
		Short: "Run multi-stage AMBER molecular dynamics campaigns with checkpoint and resume",
		Long: `amberrun drives tleap, sander/pmemd and parmed through the steps of a
molecular dynamics campaign defined in HCL. Progress is saved after every
step and every MD iteration, so an interrupted campaign resumes where it
stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.NewConfig(app.Config{
				LogLevel:  o.logLevel,
				LogFormat: o.logFormat,
				StateFile: o.stateFile,
			})
			if err != nil {
				return usageError(err)
			}
			slog.Debug("CLI parameter validation complete.", "command", cmd.Name())
			o.app = app.NewApp(o.outW, o.errW, cfg)
			return nil
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	root.PersistentFlags().StringVar(&o.logLevel, "log-level", envCfg.LogLevel, "Logging level: 'debug', 'info', 'warn' or 'error'.")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", envCfg.LogFormat, "Log output format: 'text' or 'json'.")
	o.stateFile = envCfg.StateFile

	root.AddCommand(
		newInitCommand(o),
		newRunCommand(o),
		newStatusCommand(o),
		newReplaceCommand(o),
		newResetCommand(o),
	)
	return root, nil
}

func newInitCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init DEFINITION...",
		Short: "Create a campaign from HCL definition files or directories",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := o.app.Init(cmd.Context(), o.force, args...)
			return err
		},
	}
	cmd.Flags().BoolVar(&o.force, "force", false, "Overwrite an existing state file.")
	cmd.Flags().StringVar(&o.stateFile, "state-file", o.stateFile, "State file name, overriding the definition. A .gz or .zst suffix compresses it.")
	return cmd
}

func newRunCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run STATE_FILE",
		Short: "Resume a campaign and run it to completion",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app.Run(cmd.Context(), args[0])
		},
	}
}

func newStatusCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status STATE_FILE",
		Short: "Print the progress of a campaign as YAML",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			st, err := o.app.Status(args[0])
			if err != nil {
				return err
			}
			return app.WriteStatus(o.outW, st)
		},
	}
}

func newReplaceCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replace STATE_FILE DEFINITION...",
		Short: "Replace or append campaign steps from HCL step blocks",
		Args:  usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := o.app.Replace(cmd.Context(), args[0], args[1:]...)
			return err
		},
	}
}

func newResetCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset STATE_FILE STEP",
		Short: "Mark a completed single-call step as not run",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.app.Reset(cmd.Context(), args[0], args[1])
		},
	}
}

// Execute runs the command tree for args. Usage mistakes are returned as
// an *ExitError with code 2; other failures are returned as they are.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root, err := NewRootCommand(outW, errW)
	if err != nil {
		return err
	}
	root.SetArgs(args)

	err = root.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) && strings.HasPrefix(err.Error(), "unknown command") {
		return usageError(err)
	}
	return err
}
