package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/config"
	"github.com/BradenHooton/otpflow/internal/flow"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/internal/verifier"
	pkglogger "github.com/BradenHooton/otpflow/pkg/logger"
)

const usage = `usage: otpflow [-verbose] <signup|forgot>

  signup   create an account and verify its email with a one-time code
  forgot   reset a password with a one-time code
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("otpflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	verbose := fs.Bool("verbose", false, "write debug logs to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	variant, ok := variantFor(fs.Arg(0))
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadClient()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		return 1
	}

	remote := verifier.NewHTTPVerifier(cfg.APIBaseURL, cfg.HTTPTimeout, logger, cfg.Env)

	readyCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	if err := remote.WaitReady(readyCtx, 3); err != nil {
		logger.Warn("authority not reachable yet",
			slog.String("url", cfg.APIBaseURL),
			slog.Any("error", err))
	}
	cancel()

	ctrl, err := flow.NewController(flow.Config{
		Variant:  variant,
		Verifier: remote,
		Clock:    clock.New(),
		Rules: flow.Rules{
			CodeMinLength:       cfg.CodeMinLength,
			CodeMaxLength:       cfg.CodeMaxLength,
			CredentialMinLength: cfg.CredentialMinLength,
		},
		TickInterval: cfg.TickInterval,
		Logger:       logger,
		Audit:        pkglogger.NewAuditLogger(logger),
	})
	if err != nil {
		logger.Error("failed to create flow", slog.Any("error", err))
		return 1
	}

	return interact(ctrl, stdin, stdout, cfg.HTTPTimeout)
}

// interact runs the prompts and maps the outcome to an exit code
func interact(ctrl *flow.Controller, stdin io.Reader, stdout io.Writer, timeout time.Duration) int {
	err := newPrompter(ctrl, stdin, stdout, timeout).run()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errQuit), errors.Is(err, io.EOF):
		fmt.Fprintln(stdout, "\nCancelled.")
		return 130
	default:
		fmt.Fprintf(stdout, "\nError: %s\n", err)
		return 1
	}
}

func variantFor(command string) (models.FlowVariant, bool) {
	switch command {
	case "signup":
		return models.FlowSignup, true
	case "forgot", "forgot-password":
		return models.FlowForgotPassword, true
	default:
		return "", false
	}
}
