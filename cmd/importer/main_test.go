package main

import (
	"flag"
	"io"
	"testing"

	"github.com/yungbote/bookimport/internal/app"
)

func parse(t *testing.T, args ...string) (*flag.FlagSet, *cliFlags) {
	t.Helper()
	var f cliFlags
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&f.dryRun, "dry-run", false, "")
	fs.IntVar(&f.concurrency, "concurrency", 0, "")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "")
	fs.BoolVar(&f.failFast, "fail-fast", false, "")
	fs.BoolVar(&f.noContentJSON, "no-content-json", false, "")
	fs.StringVar(&f.docstore, "docstore", "", "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return fs, &f
}

func TestApplyFlagsOnlyOverridesGivenFlags(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.Concurrency = 12
	fs, f := parse(t, "--dry-run", "--no-content-json", "--docstore", " SQLite ", "book.json")
	if err := applyFlags(fs, f, &cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if !cfg.DryRun || cfg.UploadContentJSON || cfg.DocStoreMode != app.DocStoreSQLite {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Concurrency != 12 {
		t.Fatalf("unset flag overrode config: concurrency=%d", cfg.Concurrency)
	}
	if fs.Arg(0) != "book.json" {
		t.Fatalf("path arg: got %q", fs.Arg(0))
	}
}

func TestApplyFlagsPolicy(t *testing.T) {
	cfg := app.DefaultConfig()
	fs, f := parse(t, "--fail-fast")
	if err := applyFlags(fs, f, &cfg); err != nil || !cfg.FailFast {
		t.Fatalf("fail-fast: err=%v cfg.FailFast=%v", err, cfg.FailFast)
	}

	cfg.FailFast = true
	fs, f = parse(t, "--continue-on-error")
	if err := applyFlags(fs, f, &cfg); err != nil || cfg.FailFast {
		t.Fatalf("continue-on-error: err=%v cfg.FailFast=%v", err, cfg.FailFast)
	}

	fs, f = parse(t, "--continue-on-error", "--fail-fast")
	if err := applyFlags(fs, f, &cfg); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestLogMode(t *testing.T) {
	cases := map[string]string{
		"":             "development",
		"development":  "development",
		" PROD ":       "production",
		"production":   "production",
		"verbose-ish?": "development",
	}
	for raw, want := range cases {
		if got := logMode(raw); got != want {
			t.Fatalf("logMode(%q): want=%q got=%q", raw, want, got)
		}
	}
}
