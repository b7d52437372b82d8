package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/yungbote/bookimport/internal/app"
	"github.com/yungbote/bookimport/internal/importer"
	"github.com/yungbote/bookimport/internal/importer/report"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

type cliFlags struct {
	configPath        string
	dryRun            bool
	concurrency       int
	uploadConcurrency int
	continueOnError   bool
	failFast          bool
	mediaRoot         string
	failuresOut       string
	retryFrom         string
	noContentJSON     bool
	docstore          string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f cliFlags
	fs := flag.NewFlagSet("importer", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: importer [flags] [path]\n\nImports a book document (default %s).\n\n", app.DefaultInputPath)
		fs.PrintDefaults()
	}
	fs.StringVar(&f.configPath, "config", "", "YAML config file (overrides IMPORT_CONFIG_FILE)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "validate and count writes without touching any store")
	fs.IntVar(&f.concurrency, "concurrency", 0, "concurrent commit units and sections")
	fs.IntVar(&f.uploadConcurrency, "upload-concurrency", 0, "concurrent media uploads across all sections")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "record failures and keep going (default policy)")
	fs.BoolVar(&f.failFast, "fail-fast", false, "stop scheduling new work after the first failure")
	fs.StringVar(&f.mediaRoot, "media-root", "", "directory relative media paths are resolved against")
	fs.StringVar(&f.failuresOut, "failures-out", "", "write one line per failure to this file")
	fs.StringVar(&f.retryFrom, "retry-failures", "", "re-run only the units listed in a failures file")
	fs.BoolVar(&f.noContentJSON, "no-content-json", false, "do not upload resolved content documents as JSON")
	fs.StringVar(&f.docstore, "docstore", "", "document store: firestore, postgres, sqlite, mongo or memory")
	_ = fs.Parse(os.Args[1:])

	// Config loading logs through a logger built from LOG_MODE; once log_mode is known
	// from the config file the logger is rebuilt if it differs.
	bootMode := logMode(os.Getenv("LOG_MODE"))
	log, err := logger.New(bootMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	defer func() { log.Sync() }()

	cfg, err := app.LoadConfig(log, f.configPath)
	if err != nil {
		log.Error("Failed to load config", "error", err)
		return 1
	}
	if mode := logMode(cfg.LogMode); mode != bootMode {
		next, err := logger.New(mode)
		if err != nil {
			log.Error("Failed to init logger", "log_mode", mode, "error", err)
			return 1
		}
		log.Sync()
		log = next
	}
	if err := applyFlags(fs, &f, &cfg); err != nil {
		log.Error("Invalid flags", "error", err)
		return 1
	}
	if fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}

	doc, err := importer.LoadFile(cfg.Input)
	if err != nil {
		log.Error("Import document rejected", "path", cfg.Input, "error", err)
		return 1
	}

	var onlyUnits map[string]bool
	if f.retryFrom != "" {
		onlyUnits, err = report.ReadFailedUnits(f.retryFrom)
		if err != nil {
			log.Error("Failed to read failures file", "path", f.retryFrom, "error", err)
			return 1
		}
		if len(onlyUnits) == 0 {
			fmt.Println("nothing to retry")
			return 0
		}
		log.Info("Retrying failed units", "units", len(onlyUnits))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		return 1
	}
	defer application.Close()

	imp := application.Importer(onlyUnits)
	log.Info("Starting import", "path", cfg.Input, "docstore", cfg.DocStoreMode, "options", application.ImportOptions(onlyUnits).Describe())

	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		application.ReportProgress(progressCtx)
	}()

	rep, runErr := imp.Run(ctx, doc)
	stopProgress()
	wg.Wait()

	if err := rep.WriteSummary(os.Stdout); err != nil {
		log.Warn("Failed to print summary", "error", err)
	}
	if cfg.FailuresOut != "" {
		if err := rep.WriteFailures(cfg.FailuresOut); err != nil {
			log.Error("Failed to write failures file", "path", cfg.FailuresOut, "error", err)
			return 1
		}
	}
	if runErr != nil {
		log.Error("Import failed", "error", runErr)
		return 1
	}
	return 0
}

// logMode folds the accepted spellings onto the two modes logger.New distinguishes.
func logMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return "production"
	default:
		return "development"
	}
}

// applyFlags overrides cfg with the flags given explicitly on the command line.
func applyFlags(fs *flag.FlagSet, f *cliFlags, cfg *app.Config) error {
	if f.failFast && f.continueOnError {
		return fmt.Errorf("--fail-fast and --continue-on-error are mutually exclusive")
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "dry-run":
			cfg.DryRun = f.dryRun
		case "concurrency":
			cfg.Concurrency = f.concurrency
		case "upload-concurrency":
			cfg.UploadConcurrency = f.uploadConcurrency
		case "continue-on-error":
			cfg.FailFast = !f.continueOnError
		case "fail-fast":
			cfg.FailFast = f.failFast
		case "media-root":
			cfg.MediaRoot = f.mediaRoot
		case "failures-out":
			cfg.FailuresOut = f.failuresOut
		case "no-content-json":
			cfg.UploadContentJSON = !f.noContentJSON
		case "docstore":
			cfg.DocStoreMode = strings.ToLower(strings.TrimSpace(f.docstore))
		}
	})
	return nil
}
