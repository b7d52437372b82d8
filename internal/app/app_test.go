package app

import (
	"context"
	"testing"

	"github.com/yungbote/bookimport/internal/docstore/memstore"
	"github.com/yungbote/bookimport/internal/importer"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

func TestNewDryRunOpensNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	cfg.FailFast = true
	cfg.Concurrency = 2

	a, err := New(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if _, ok := a.Store.(*memstore.Store); !ok {
		t.Fatalf("dry run store: got %T", a.Store)
	}
	if a.Bucket != nil {
		t.Fatalf("dry run should not open a bucket")
	}
	opts := a.ImportOptions(map[string]bool{"glossary": true})
	if opts.Policy != importer.FailFast || !opts.DryRun || opts.UnitConcurrency != 2 || !opts.OnlyUnits["glossary"] {
		t.Fatalf("options: %+v", opts)
	}
	if a.Importer(nil) == nil {
		t.Fatalf("Importer: nil")
	}
	a.ReportProgress(context.Background())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocStoreMode = "dynamo"
	if _, err := New(context.Background(), logger.Nop(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewMemoryStoreRequiresBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocStoreMode = DocStoreMemory
	if _, err := New(context.Background(), logger.Nop(), cfg); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestNewOpensBlobStore(t *testing.T) {
	got := stubOpenBucket(t, nil)
	cfg := DefaultConfig()
	cfg.DocStoreMode = DocStoreMemory
	cfg.Bucket = "book-media"
	cfg.CDNDomain = "cdn.example.com"

	a, err := New(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Bucket == nil {
		t.Fatalf("bucket not opened")
	}
	if got.Bucket != "book-media" || got.CDNDomain != "cdn.example.com" {
		t.Fatalf("object storage config: %+v", *got)
	}
}
