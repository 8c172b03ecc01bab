// Command creatorctl drives the platform from a terminal: sign in, manage
// campaigns, search creators and read analytics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/config"
	"github.com/tjfontaine/creatorlink/internal/telemetry"
	"github.com/tjfontaine/creatorlink/pkg/creatorlink"
)

var errNotSignedIn = errors.New("not signed in, run `creatorctl login` first")

// app carries what every subcommand needs once the root Before hook ran.
type app struct {
	out    io.Writer
	errOut io.Writer

	logger   *slog.Logger
	client   *creatorlink.Client
	shutdown telemetry.Shutdown
	asJSON   bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, errOut: os.Stderr}
	if err := a.root().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:      "creatorctl",
		Usage:     "command line client for the creator platform",
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultFile,
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("CREATORLINK_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print results as JSON",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.loginCommand(),
			a.registerCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.campaignsCommand(),
			a.creatorsCommand(),
			a.dashboardCommand(),
			a.analyticsCommand(),
			a.payCommand(),
			a.voiceCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("load config: %w", err)
	}
	a.asJSON = cmd.Bool("json")

	a.logger = telemetry.NewLogger(a.errOut, cmd.String("log-level"), cfg.Log.Format)
	slog.SetDefault(a.logger)

	a.shutdown, err = telemetry.InitTracer("creatorctl", cfg.Telemetry.Traces, a.errOut, a.logger)
	if err != nil {
		return ctx, fmt.Errorf("init tracer: %w", err)
	}

	a.client, err = creatorlink.New(ctx,
		creatorlink.WithConfig(cfg),
		creatorlink.WithLogger(a.logger),
		creatorlink.WithNavigator(creatorlink.NavigatorFunc(func(path string) {
			fmt.Fprintf(a.errOut, "-> %s\n", path)
		})),
	)
	if err != nil {
		return ctx, err
	}
	if err := a.client.Start(ctx); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (a *app) after(ctx context.Context, _ *cli.Command) error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Shutdown(ctx))
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// requireSession visits path through the session gate. Protected pages are
// refused while signed out.
func (a *app) requireSession(path string) error {
	if d := a.client.Session.Visit(path); !d.Render {
		return errNotSignedIn
	}
	return nil
}

// describe renders an error for the terminal, including field messages
// from validation failures.
func describe(err error) string {
	var env *apierr.Error
	if !errors.As(err, &env) {
		return err.Error()
	}
	if len(env.Fields) == 0 {
		return env.Message
	}

	fields := make([]string, 0, len(env.Fields))
	for f := range env.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(env.Message)
	for _, f := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", f, strings.Join(env.Fields[f], "; "))
	}
	return b.String()
}
