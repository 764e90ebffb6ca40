package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"immich-service/internal/cli"
	"immich-service/internal/commands"
	"immich-service/internal/session"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// main is the entrypoint for the immich command line client.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Stdin, os.Args[1:]); err != nil {
		stop()
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the command handlers and hands the arguments to the parser.
func run(ctx context.Context, outW io.Writer, inR io.Reader, args []string) error {
	log, err := newLogger(os.Getenv("IMMICH_LOG_LEVEL"))
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error(), Err: err}
	}
	defer log.Sync()

	store, err := session.NewStore("")
	if err != nil {
		return err
	}

	deps := commands.Deps{Out: outW, In: inR, Logger: log, Store: store}
	return cli.Run(ctx, args, outW, cli.Handlers{
		Upload:     commands.NewUpload(deps).Run,
		ServerInfo: commands.NewServerInfo(deps).Run,
		LoginKey:   commands.NewLoginKey(deps).Run,
		Logout:     commands.NewLogout(deps).Run,
	})
}

// newLogger logs to stderr so command output on stdout stays clean
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid IMMICH_LOG_LEVEL %q: must be 'debug', 'info', 'warn' or 'error'", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.CallerKey = "file"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
