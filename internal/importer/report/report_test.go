package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/bookimport/internal/pkg/importerr"
)

func TestSummaryListsCountsAndFailures(t *testing.T) {
	r := New()
	r.AddPlanned("chapters", 2)
	r.AddWritten("chapters", 1)
	r.Uploaded = 3
	r.Fail(Failure{Phase: PhaseMedia, Key: "content/c1/s1#img", Unit: "content:c1/s1", Err: importerr.Tag(importerr.ErrMissingLocalAsset, errors.New("./missing.png"))})

	var buf bytes.Buffer
	if err := r.WriteSummary(&buf); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"chapters", "1 / 2 written", "media uploads", "1 failure(s)", "missing_local_asset", "./missing.png"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if r.CountKind(importerr.KindMissingLocalAsset) != 1 {
		t.Fatalf("CountKind: want=1")
	}
}

func TestMerge(t *testing.T) {
	a, b := New(), New()
	a.AddWritten("sections", 2)
	b.AddWritten("sections", 3)
	b.Uploaded = 1
	b.Fail(Failure{Key: "x", Err: importerr.Tag(importerr.ErrWriteFailure, errors.New("boom"))})
	a.Merge(b)
	if a.Written["sections"] != 5 || a.Uploaded != 1 || len(a.Failures) != 1 {
		t.Fatalf("merge: %+v", a)
	}
	if a.Failures[0].Kind != importerr.KindWriteFailure {
		t.Fatalf("kind derived from error: got %q", a.Failures[0].Kind)
	}
}

func TestFailuresFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failures.tsv")

	empty := New()
	if err := empty.WriteFailures(path); err != nil {
		t.Fatalf("WriteFailures empty: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file expected when nothing failed")
	}

	r := New()
	r.Fail(Failure{Key: "chapters/c1", Unit: "chapter:c1", Err: errors.New("line1\nline2")})
	r.Fail(Failure{Key: "chapters/c1/sections/s1", Unit: "chapter:c1", Err: errors.New("skipped")})
	r.Fail(Failure{Key: "glossary/g1", Unit: "glossary", Err: errors.New("x")})
	if err := r.WriteFailures(path); err != nil {
		t.Fatalf("WriteFailures: %v", err)
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Fatalf("lines: want=3 got=%d", n)
	}
	units, err := ReadFailedUnits(path)
	if err != nil {
		t.Fatalf("ReadFailedUnits: %v", err)
	}
	if len(units) != 2 || !units["chapter:c1"] || !units["glossary"] {
		t.Fatalf("units: %v", units)
	}
}

func TestJoinedFailurePrintsOnOneLine(t *testing.T) {
	f := Failure{
		Phase: PhaseDocument,
		Key:   "chapters/c1",
		Err:   importerr.Tag(importerr.ErrWriteFailure, errors.New("rpc error: code = Unavailable")),
	}
	if s := f.String(); strings.Contains(s, "\n") {
		t.Fatalf("String spans lines: %q", s)
	}
	if want := "write failure; rpc error: code = Unavailable"; f.Cause() != want {
		t.Fatalf("Cause: want=%q got=%q", want, f.Cause())
	}

	r := New()
	r.Fail(f)
	r.Fail(Failure{Phase: PhaseMedia, Key: "content/c1/s1#img", Err: importerr.Tag(importerr.ErrUploadFailure, errors.New("timeout"))})
	var buf bytes.Buffer
	if err := r.WriteSummary(&buf); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	var items int
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "  - ") {
			items++
		}
	}
	if items != 2 {
		t.Fatalf("failure lines: want=2 got=%d in %q", items, buf.String())
	}
	if strings.Contains(buf.String(), "\ntimeout") {
		t.Fatalf("cause wrapped onto its own line: %q", buf.String())
	}
}
