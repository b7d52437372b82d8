package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/bookimport/internal/docstore"
)

func op(path docstore.Path, id string, payload map[string]any) docstore.WriteOp {
	return docstore.WriteOp{Target: path, DocID: id, Payload: payload}
}

func TestBatchCommitIsAllOrNothing(t *testing.T) {
	boom := errors.New("boom")
	s := New(WithFault(func(o docstore.WriteOp, attempt int) error {
		if o.DocID == "bad" {
			return boom
		}
		return nil
	}))
	ctx := context.Background()
	err := s.BatchCommit(ctx, []docstore.WriteOp{
		op(docstore.Collection("glossary"), "ok", map[string]any{"term": "a"}),
		op(docstore.Collection("glossary"), "bad", map[string]any{"term": "b"}),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("failed batch leaked %d docs", s.Len())
	}
	if s.Calls() != 1 {
		t.Fatalf("calls: want=1 got=%d", s.Calls())
	}
}

func TestSetReplacesDocument(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := docstore.Collection("chapters").Sub("c1", "sections")
	if err := s.Set(ctx, op(p, "s1", map[string]any{"title": "a", "order": 1})); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, op(p, "s1", map[string]any{"title": "b"})); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	got, ok := s.Get(p, "s1")
	if !ok {
		t.Fatalf("document missing")
	}
	if got["title"] != "b" {
		t.Fatalf("title: want=%q got=%v", "b", got["title"])
	}
	if _, stale := got["order"]; stale {
		t.Fatalf("replace kept stale field")
	}
	if len(s.Writes()) != 2 || s.Len() != 1 {
		t.Fatalf("writes=%d len=%d", len(s.Writes()), s.Len())
	}
}

func TestFaultAttemptsCount(t *testing.T) {
	var seen []int
	s := New(WithFault(func(o docstore.WriteOp, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return docstore.MarkTransient(errors.New("flaky"))
		}
		return nil
	}))
	ctx := context.Background()
	o := op(docstore.Collection("users"), "u1", map[string]any{})
	for i := 0; i < 3; i++ {
		_ = s.Set(ctx, o)
	}
	if _, ok := s.Get(docstore.Collection("users"), "u1"); !ok {
		t.Fatalf("third attempt should succeed")
	}
	if len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("attempts: got %v", seen)
	}
}

func TestBatchLimitAndClose(t *testing.T) {
	s := New(WithMaxBatchOps(1))
	ctx := context.Background()
	ops := []docstore.WriteOp{
		op(docstore.Collection("a"), "1", nil),
		op(docstore.Collection("a"), "2", nil),
	}
	if err := s.BatchCommit(ctx, ops); !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	_ = s.Close()
	if err := s.Set(ctx, ops[0]); err == nil {
		t.Fatalf("expected write after Close to fail")
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := New().Set(cctx, ops[0]); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPing(t *testing.T) {
	if err := New().Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	down := errors.New("connection refused")
	s := New(WithPingError(down))
	if err := s.Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("Ping: want=%v got=%v", down, err)
	}
	var _ docstore.Pinger = s
}
