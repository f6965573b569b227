package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wudi/pdfsamples/config"
	"github.com/wudi/pdfsamples/engine"
	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/session"
	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/surface/surfacetest"
)

var (
	okLabel    = color.New(color.FgGreen)
	errorLabel = color.New(color.FgRed)
	dryLabel   = color.New(color.FgHiMagenta, color.Bold)
)

// app holds the persistent flags and the session of one invocation.
type app struct {
	configFile  string
	logLevel    string
	logFormat   string
	tempStorage string
	memoryLimit int64
	dryRun      bool

	out    io.Writer
	errOut io.Writer

	sess *session.Session
	fake *surfacetest.Driver
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		errorLabel.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfsession [command] [flags]",
		Short: "Run PDF operations inside one document session",
		Long: `pdfsession opens a document session, runs one operation and closes the
session, releasing every document, page and image it opened.

Examples:
  # Show document information
  pdfsession info report.pdf

  # Watermark every page, keeping payloads in memory
  pdfsession watermark report.pdf out.pdf --text DRAFT --temp-storage memory

  # Print the resource lifecycle without touching any file
  pdfsession rotate report.pdf out.pdf --dry-run`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Path to a TOML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error or disabled")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: json or console")
	pf.StringVar(&a.tempStorage, "temp-storage", "", "Where intermediate payloads are kept: disk or memory")
	pf.Int64Var(&a.memoryLimit, "memory-limit", 0, "Maximum bytes held by open documents and images, 0 for no limit")
	pf.BoolVar(&a.dryRun, "dry-run", false, "Use a fake surface and print the resource lifecycle")

	root.AddCommand(
		a.infoCmd(),
		a.watermarkCmd(),
		a.rotateCmd(),
		a.optimizeCmd(),
		a.encryptCmd(),
		a.mergeCmd(),
		a.splitCmd(),
		a.textCmd(),
		a.wordsCmd(),
		a.imagesCmd(),
		a.convertCmd(),
		a.formsCmd(),
		a.ocrCmd(),
	)
	return root
}

// load reads the configuration and applies the flags the user set.
func (a *app) load(cmd *cobra.Command) (config.File, error) {
	f, err := config.Load(a.configFile, config.WithEnvFile(".env"))
	if err != nil {
		return config.File{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		f.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		f.Log.Format = a.logFormat
	}
	if flags.Changed("temp-storage") {
		f.Session.TempStorage = surface.TempStorage(strings.ToLower(a.tempStorage))
	}
	if flags.Changed("memory-limit") {
		f.Session.MemoryLimit = a.memoryLimit
	}
	if f.Log.Level == "" {
		f.Log.Level = "warn"
	}
	if f.Log.Format == "" {
		f.Log.Format = "console"
	}
	if err := config.Validate(f); err != nil {
		return config.File{}, err
	}
	return f, nil
}

// run wraps a command body in a session that is closed on every exit path.
func (a *app) run(extensions []surface.Extension, body func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		f, err := a.load(cmd)
		if err != nil {
			return err
		}
		f.Log.Output = a.errOut
		log, err := observability.New(f.Log)
		if err != nil {
			return err
		}
		cfg := f.Session
		cfg.Extensions = append(cfg.Extensions, extensions...)

		var d surface.Driver = engine.NewDriver(engine.WithLogger(log))
		if a.dryRun {
			a.fake = surfacetest.NewDriver()
			d = a.fake
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		err = session.Run(ctx, d, cfg, func(s *session.Session) error {
			a.sess = s
			defer func() { a.sess = nil }()
			return body(ctx, cmd, args)
		}, session.WithLogger(log))
		if errors.Is(err, errDryRun) {
			err = nil
		}
		if a.dryRun {
			for _, ev := range a.fake.Events() {
				dryLabel.Fprint(a.out, "lifecycle ")
				fmt.Fprintln(a.out, ev)
			}
		}
		return err
	}
}

func (a *app) ok(format string, args ...any) {
	okLabel.Fprint(a.out, "✓ ")
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// open acquires an entity under parent, or under the session when parent
// is nil. In dry-run mode the fake surface gets the entity's name instead
// of the real params.
func (a *app) open(ctx context.Context, parent *session.Resource, kind surface.Kind, params any, name string) (*session.Resource, error) {
	if a.dryRun {
		params = surfacetest.Params{Name: name}
	}
	f := session.OpenEntity(kind, params)
	var (
		r   *session.Resource
		err error
	)
	if parent != nil {
		r, err = parent.Acquire(ctx, f)
	} else {
		r, err = a.sess.Acquire(ctx, f)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", kind, name, err)
	}
	return r, nil
}

func (a *app) document(ctx context.Context, path string) (*session.Resource, error) {
	return a.open(ctx, nil, engine.KindDocument, engine.OpenFile(path), path)
}

// errDryRun stops a command body after its resources were acquired.
var errDryRun = errors.New("dry run")

// use returns the entity behind r, or errDryRun on the fake surface.
func use[T surface.Entity](a *app, r *session.Resource) (T, error) {
	if a.dryRun {
		var zero T
		return zero, errDryRun
	}
	return session.Use[T](r)
}
