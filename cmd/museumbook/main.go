package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/wolfman30/museumbook/internal/app/bootstrap"
	appconfig "github.com/wolfman30/museumbook/internal/config"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/session"
	"github.com/wolfman30/museumbook/pkg/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if needsLogin(err) {
			fmt.Fprintln(os.Stderr, "run `museumbook login` to sign in again")
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(appconfig.Load(), os.Stdin, os.Stdout, os.Stderr)
	defer a.close()
	return a.exec(ctx, args)
}

func needsLogin(err error) bool {
	return errors.Is(err, museumapi.ErrUnauthorized) || errors.Is(err, session.ErrNotSignedIn)
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":        {"Sign in and store the session token", loginCmd},
	"logout":       {"Forget the stored session token", logoutCmd},
	"whoami":       {"Show the signed-in account", whoamiCmd},
	"register":     {"Create an account", registerCmd},
	"parse":        {"Preview a booking list without submitting it", parseCmd},
	"book":         {"Parse a booking list and submit every record", bookCmd},
	"template":     {"Write a CSV template (full or simple)", templateCmd},
	"release":      {"Show the ticket release window", releaseCmd},
	"slots":        {"List time slots for a museum and date", slotsCmd},
	"appointments": {"List appointments", appointmentsCmd},
	"cancel":       {"Cancel an appointment", cancelCmd},
	"admin":        {"Administrative commands", adminCmd},
	"serve":        {"Run the booking console HTTP service", serveCmd},
}

// app carries the configuration, output streams and the lazily built runtime
// shared by every command.
type app struct {
	cfg    *appconfig.Config
	logger *logging.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// reg is set by commands that expose metrics before the runtime is built.
	reg prometheus.Registerer
	rt  *bootstrap.Runtime
}

func newApp(cfg *appconfig.Config, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		cfg:    cfg,
		logger: newLogger(cfg.LogLevel, stderr),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

func newLogger(level string, w io.Writer) *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: level, Format: "text", Writer: w})
}

func (a *app) exec(ctx context.Context, args []string) error {
	flagSet := pflag.NewFlagSet("museumbook", pflag.ContinueOnError)
	flagSet.SetOutput(a.stderr)
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {}
	logLevel := flagSet.String("log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	apiURL := flagSet.String("api-url", a.cfg.APIBaseURL, "booking API base URL")
	tokenFile := flagSet.String("token-file", a.cfg.TokenFile, "where the session token is stored")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			a.printHelp(flagSet)
			return nil
		}
		return err
	}
	if *logLevel != a.cfg.LogLevel {
		a.cfg.LogLevel = *logLevel
		a.logger = newLogger(*logLevel, a.stderr)
	}
	a.cfg.APIBaseURL = appconfig.NormalizeBaseURL(*apiURL)
	a.cfg.TokenFile = *tokenFile

	rest := flagSet.Args()
	if len(rest) == 0 || rest[0] == "help" {
		a.printHelp(flagSet)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (run `museumbook help`)", rest[0])
	}
	return cmd.run(ctx, a, rest[1:])
}

func (a *app) printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(a.stderr, "museumbook - bulk museum ticket booking\n\n")
	fmt.Fprintf(a.stderr, "Usage: museumbook [global flags] <command> [flags] [args]\n\n")
	fmt.Fprintf(a.stderr, "Commands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.stderr, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(a.stderr, "\nGlobal flags:\n")
	flagSet.PrintDefaults()
}

// runtime builds the shared wiring on first use and restores the stored session.
func (a *app) runtime(ctx context.Context) (*bootstrap.Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	rt, err := bootstrap.NewRuntime(ctx, a.cfg, a.logger, a.reg)
	if err != nil {
		return nil, err
	}
	if err := rt.Session.Init(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	a.rt = rt
	return rt, nil
}

// signedIn returns the runtime after checking a session token is held.
func (a *app) signedIn(ctx context.Context) (*bootstrap.Runtime, error) {
	rt, err := a.runtime(ctx)
	if err != nil {
		return nil, err
	}
	if err := rt.Session.RequireToken(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (a *app) close() {
	if a.rt == nil {
		return
	}
	if err := a.rt.Close(); err != nil {
		a.logger.Warn("failed to close runtime", "error", err)
	}
}

// newFlagSet returns a subcommand flag set that reports errors on stderr.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("museumbook "+name, pflag.ContinueOnError)
	flagSet.SetOutput(a.stderr)
	return flagSet
}

// parseFlags parses args, treating --help as a successful no-op.
func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
