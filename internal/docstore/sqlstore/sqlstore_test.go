package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(logger.Nop(), filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBatchCommitUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chapters := docstore.Collection("chapters")
	sections := chapters.Sub("c1", "sections")

	ops := []docstore.WriteOp{
		{Target: chapters, DocID: "c1", Payload: map[string]any{"title": "Intro", "order": int64(0)}},
		{Target: sections, DocID: "s1", Payload: map[string]any{"title": "Basics"}},
	}
	for i := 0; i < 2; i++ {
		if err := s.BatchCommit(ctx, ops); err != nil {
			t.Fatalf("BatchCommit run %d: %v", i, err)
		}
	}

	n, err := s.Count(ctx, sections)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("sections: want=1 got=%d", n)
	}
	doc, ok, err := s.Get(ctx, chapters, "c1")
	if err != nil || !ok {
		t.Fatalf("Get chapter: ok=%v err=%v", ok, err)
	}
	if doc["title"] != "Intro" {
		t.Fatalf("title: want=%q got=%v", "Intro", doc["title"])
	}

	var row Document
	if err := s.DB().Where("collection_path = ? AND doc_id = ?", sections.String(), "s1").Take(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.ParentPath != "chapters/c1" {
		t.Fatalf("parent_path: want=%q got=%q", "chapters/c1", row.ParentPath)
	}
}

func TestSetReplacesPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := docstore.Collection("glossary")
	if err := s.Set(ctx, docstore.WriteOp{Target: p, DocID: "g1", Payload: map[string]any{"term": "a", "category": "x"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, docstore.WriteOp{Target: p, DocID: "g1", Payload: map[string]any{"term": "b"}}); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	doc, ok, err := s.Get(ctx, p, "g1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if doc["term"] != "b" {
		t.Fatalf("term: want=%q got=%v", "b", doc["term"])
	}
	if _, stale := doc["category"]; stale {
		t.Fatalf("replace kept stale field")
	}
	if _, ok, _ := s.Get(ctx, p, "missing"); ok {
		t.Fatalf("missing document reported present")
	}
}

func TestBatchCommitRejectsBadPath(t *testing.T) {
	s := openTestStore(t)
	err := s.BatchCommit(context.Background(), []docstore.WriteOp{{Target: docstore.Path{"a", "b"}, DocID: "x"}})
	if err == nil {
		t.Fatalf("expected invalid path error")
	}
}
