package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/lafamilia/og-scanner/pkg/bootstrap"
	"github.com/lafamilia/og-scanner/pkg/config"
	"github.com/lafamilia/og-scanner/pkg/export"
	"github.com/lafamilia/og-scanner/pkg/input"
	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/storage"
)

// Build info, set via ldflags at build time.
var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatalf("og-scanner: %v", err)
	}
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "og-scanner",
		Usage:     "barcode scan station with duplicate detection",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", buildVersion, buildCommit, buildDate),
		Writer:    stdout,
		Reader:    stdin,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.env",
				Usage:   "path to env configuration file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runScan(ctx, cmd, stdin, stdout)
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "read barcodes from the scanner (stdin) and record them",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "input",
						Usage: "read scans from this file instead of stdin",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "submit on 'enter' or after a 'pause' in typing (default from SUBMIT_MODE)",
					},
					&cli.DurationFlag{
						Name:  "pause",
						Usage: "quiet period for pause mode (default from SUBMIT_PAUSE)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runScan(ctx, cmd, stdin, stdout)
				},
			},
			{
				Name:      "lookup",
				Usage:     "show when a barcode was first scanned",
				ArgsUsage: "<barcode>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runLookup(ctx, cmd, stdout)
				},
			},
			{
				Name:  "history",
				Usage: "list recorded scans, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "maximum number of scans to show (0 for all)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runHistory(ctx, cmd, stdout)
				},
			},
			{
				Name:  "export",
				Usage: "export the ledger as CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "write the CSV to this file (default stdout)",
					},
					&cli.BoolFlag{
						Name:  "upload",
						Usage: "upload the CSV to the configured MinIO bucket",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runExport(ctx, cmd, stdout)
				},
			},
		},
	}
}

// setup loads configuration and starts the logger shared by every command.
func setup(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Load(cmd.String("config"))
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func runScan(ctx context.Context, cmd *cli.Command, stdin io.Reader, stdout io.Writer) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	modeName := cfg.Input.SubmitMode
	if cmd.IsSet("mode") {
		modeName = cmd.String("mode")
	}
	mode, err := input.ParseMode(modeName)
	if err != nil {
		return err
	}
	pause := cfg.Input.Pause
	if cmd.IsSet("pause") {
		pause = cmd.Duration("pause")
	}

	in := stdin
	if path := cmd.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Console: stdout})
	if err != nil {
		return fmt.Errorf("open scan store: %w", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("scan station ready", "mode", string(mode), "pause", pause.String())
	fmt.Fprintln(stdout, "Ready to scan.")

	return scanLoop(ctx, input.Reader{Mode: mode, Pause: pause}, in, app.Ledger)
}

type scanRecorder interface {
	RecordScan(ctx context.Context, code string) (ledger.Result, error)
}

// scanLoop records every submission from in until EOF. The first storage
// error stops the loop and is returned.
func scanLoop(ctx context.Context, reader input.Reader, in io.Reader, rec scanRecorder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var scanErr error
	err := reader.Run(ctx, in, func(code string) {
		if _, err := rec.RecordScan(ctx, code); err != nil {
			// Storage is gone; keep the first failure and stop reading.
			if scanErr == nil {
				scanErr = err
			}
			cancel()
		}
	})
	if scanErr != nil {
		logger.Log.Errorw("scan station stopping", "error", scanErr)
		return scanErr
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func runLookup(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	code := cmd.Args().First()
	if code == "" {
		return fmt.Errorf("lookup: barcode argument required")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("open scan store: %w", err)
	}
	defer app.Close()

	rec, err := app.Ledger.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(stdout, "%s has not been scanned.\n", code)
			return nil
		}
		return err
	}
	fmt.Fprintf(stdout, "%s was first scanned at %s (%s)\n",
		rec.Barcode, rec.ScannedAt.Local().Format(ledger.DisplayLayout), storage.FormatTimestamp(rec.ScannedAt))
	return nil
}

func runHistory(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := bootstrap.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open scan store: %w", err)
	}
	defer repo.Close()

	recs, err := repo.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(stdout, "No scans recorded.")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(stdout, "%s  %s\n", storage.FormatTimestamp(rec.ScannedAt), rec.Barcode)
	}
	return nil
}

func runExport(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := bootstrap.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open scan store: %w", err)
	}
	defer repo.Close()

	if cmd.Bool("upload") {
		up, err := export.NewMinIOUploader(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		loc, n, err := export.ExportTo(ctx, repo, up, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Exported %d scans to %s\n", n, loc)
		return nil
	}

	w := stdout
	if path := cmd.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := export.Export(ctx, repo, w)
	if err != nil {
		return err
	}
	logger.Log.Infow("ledger exported", "scans", n, "out", cmd.String("out"))
	return nil
}
