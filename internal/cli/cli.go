package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"immich-service/config"
	"immich-service/internal/commands"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	exitHandler = 1
	exitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Handlers are the functions behind each command
type Handlers struct {
	Upload     func(ctx context.Context, paths []string, opts commands.UploadOptions) error
	ServerInfo func(ctx context.Context) error
	LoginKey   func(ctx context.Context, instanceURL, apiKey string) error
	Logout     func(ctx context.Context) error
}

// Command is one entry of the dispatch table. opts is only set for upload.
type Command func(ctx context.Context, args []string, opts commands.UploadOptions) error

// Table maps command names to their handlers
func (h Handlers) Table() map[string]Command {
	return map[string]Command{
		"upload": func(ctx context.Context, args []string, opts commands.UploadOptions) error {
			return h.Upload(ctx, args, opts)
		},
		"server-info": func(ctx context.Context, args []string, _ commands.UploadOptions) error {
			return h.ServerInfo(ctx)
		},
		"login-key": func(ctx context.Context, args []string, _ commands.UploadOptions) error {
			var instanceURL, apiKey string
			if len(args) > 0 {
				instanceURL = args[0]
			}
			if len(args) > 1 {
				apiKey = args[1]
			}
			return h.LoginKey(ctx, instanceURL, apiKey)
		},
		"logout": func(ctx context.Context, args []string, _ commands.UploadOptions) error {
			return h.Logout(ctx)
		},
	}
}

// handlerError marks errors that came from a handler rather than from parsing
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Run parses args and runs the selected command. Parsing problems become an
// *ExitError with code 2, handler failures one with code 1.
func Run(ctx context.Context, args []string, out io.Writer, handlers Handlers) error {
	return run(ctx, args, out, handlers, os.LookupEnv)
}

func run(ctx context.Context, args []string, out io.Writer, handlers Handlers, lookupEnv func(string) (string, bool)) error {
	root := newRootCommand(handlers.Table(), lookupEnv)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(expandIgnore(args))

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var herr *handlerError
	if errors.As(err, &herr) {
		return &ExitError{Code: exitHandler, Message: "Error: " + herr.Error(), Err: herr.err}
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: exitUsage, Message: fmt.Sprintf("Error: %v\nRun 'immich --help' for usage.", err), Err: err}
}

func newRootCommand(table map[string]Command, lookupEnv func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:           "immich",
		Short:         "Command line interface for Immich",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	dispatch := func(name string, opts func(cmd *cobra.Command) (commands.UploadOptions, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			var options commands.UploadOptions
			if opts != nil {
				var err error
				if options, err = opts(cmd); err != nil {
					return err
				}
			}
			if err := table[name](cmd.Context(), args, options); err != nil {
				return &handlerError{err: err}
			}
			return nil
		}
	}

	flags := &uploadFlags{}
	upload := &cobra.Command{
		Use:   "upload [paths...]",
		Short: "Upload assets",
		RunE: dispatch("upload", func(cmd *cobra.Command) (commands.UploadOptions, error) {
			return flags.resolve(cmd.Flags(), lookupEnv)
		}),
	}
	flags.bind(upload.Flags())
	// -h belongs to --skip-hash, so help is long-form only
	upload.Flags().Bool("help", false, "help for upload")

	serverInfo := &cobra.Command{
		Use:   "server-info",
		Short: "Display server information",
		Args:  cobra.NoArgs,
		RunE:  dispatch("server-info", nil),
	}

	loginKey := &cobra.Command{
		Use:   "login-key [instanceUrl] [apiKey]",
		Short: "Login using an API key",
		Args:  cobra.MaximumNArgs(2),
		RunE:  dispatch("login-key", nil),
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Args:  cobra.NoArgs,
		RunE:  dispatch("logout", nil),
	}

	root.AddCommand(upload, serverInfo, loginKey, logout)
	return root
}

// uploadFlags holds the raw upload flag values
type uploadFlags struct {
	recursive bool
	ignore    []string
	skipHash  bool
	dryRun    bool
	delete    bool
}

func (f *uploadFlags) bind(fs *pflag.FlagSet) {
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "Recursive (env: IMMICH_RECURSIVE)")
	fs.StringArrayVarP(&f.ignore, "ignore", "i", nil, "Paths to ignore (env: IMMICH_IGNORE_PATHS)")
	fs.BoolVarP(&f.skipHash, "skip-hash", "h", false, "Don't hash files before upload (env: IMMICH_SKIP_HASH)")
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "Don't perform any actions, just show what will be done (env: IMMICH_DRY_RUN)")
	fs.BoolVar(&f.delete, "delete", false, "Delete local assets after upload (env: IMMICH_DELETE_ASSETS)")
}

// resolve applies environment overrides for flags not given on the command line
func (f *uploadFlags) resolve(fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (commands.UploadOptions, error) {
	opts := commands.UploadOptions{
		Recursive:       f.recursive,
		ExcludePatterns: f.ignore,
		SkipHash:        f.skipHash,
		DryRun:          f.dryRun,
		Delete:          f.delete,
	}

	for _, b := range []struct {
		flag string
		env  string
		dst  *bool
	}{
		{"recursive", "IMMICH_RECURSIVE", &opts.Recursive},
		{"skip-hash", "IMMICH_SKIP_HASH", &opts.SkipHash},
		{"dry-run", "IMMICH_DRY_RUN", &opts.DryRun},
		{"delete", "IMMICH_DELETE_ASSETS", &opts.Delete},
	} {
		if fs.Changed(b.flag) {
			continue
		}
		raw, ok := lookupEnv(b.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		value, ok := config.ParseBool(raw)
		if !ok {
			return opts, &ExitError{Code: exitUsage, Message: fmt.Sprintf("Error: invalid boolean %q in %s", raw, b.env)}
		}
		*b.dst = value
	}

	if !fs.Changed("ignore") {
		if raw, ok := lookupEnv("IMMICH_IGNORE_PATHS"); ok {
			opts.ExcludePatterns = splitList(raw)
		}
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandIgnore rewrites the variadic "-i a b" into "-i a -i b": every token
// after -i/--ignore up to the next flag is one more pattern.
func expandIgnore(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if arg != "-i" && arg != "--ignore" {
			out = append(out, arg)
			continue
		}

		values := 0
		for i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, arg, args[i])
			values++
		}
		if values == 0 {
			out = append(out, arg)
		}
	}
	return out
}
