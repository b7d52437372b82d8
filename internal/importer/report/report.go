// Package report accumulates the outcome of an import run and renders it for the terminal
// and for failure files used by targeted re-runs.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/bookimport/internal/pkg/importerr"
)

type Phase string

const (
	PhaseDocument Phase = "document"
	PhaseContent  Phase = "content"
	PhaseMedia    Phase = "media"
	PhaseStaging  Phase = "staging"
)

// Failure is one item that did not make it. Unit names the commit unit to re-run.
type Failure struct {
	Phase      Phase
	Collection string
	Key        string
	Unit       string
	Kind       importerr.Kind
	Err        error
}

func (f Failure) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", f.Phase, f.Kind, f.Key, f.Cause())
}

// Cause is the error text on one line. Joined errors print one cause per line.
func (f Failure) Cause() string {
	return strings.ReplaceAll(fmt.Sprint(f.Err), "\n", "; ")
}

// Report is owned by one goroutine at a time. Concurrent stages fill their own Report and
// the owner merges them.
type Report struct {
	Planned  map[string]int
	Written  map[string]int
	Uploaded int
	Staged   int
	Failures []Failure
	DryRun   bool
	Started  time.Time
	Finished time.Time
}

func New() *Report {
	return &Report{Planned: map[string]int{}, Written: map[string]int{}}
}

func (r *Report) AddPlanned(collection string, n int) {
	if r.Planned == nil {
		r.Planned = map[string]int{}
	}
	r.Planned[collection] += n
}

func (r *Report) AddWritten(collection string, n int) {
	if r.Written == nil {
		r.Written = map[string]int{}
	}
	r.Written[collection] += n
}

func (r *Report) Fail(f Failure) {
	if f.Kind == "" {
		f.Kind = importerr.KindOf(f.Err)
	}
	r.Failures = append(r.Failures, f)
}

func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	for k, v := range o.Planned {
		r.AddPlanned(k, v)
	}
	for k, v := range o.Written {
		r.AddWritten(k, v)
	}
	r.Uploaded += o.Uploaded
	r.Staged += o.Staged
	r.Failures = append(r.Failures, o.Failures...)
}

func (r *Report) HasFailures() bool { return len(r.Failures) > 0 }

// CountKind is the number of failures of kind k.
func (r *Report) CountKind(k importerr.Kind) int {
	n := 0
	for _, f := range r.Failures {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Sort orders failures by phase then key so output is stable across runs.
func (r *Report) Sort() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		a, b := r.Failures[i], r.Failures[j]
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return a.Key < b.Key
	})
}

// WriteSummary prints counts per collection followed by every failure with its cause.
func (r *Report) WriteSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	title := "Import summary"
	if r.DryRun {
		title += " (dry run, nothing written)"
	}
	fmt.Fprintln(bw, title)
	if !r.Started.IsZero() && !r.Finished.IsZero() {
		fmt.Fprintf(bw, "  duration: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}

	names := map[string]bool{}
	for k := range r.Planned {
		names[k] = true
	}
	for k := range r.Written {
		names[k] = true
	}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(bw, "  %-14s %5d / %d written\n", k, r.Written[k], r.Planned[k])
	}
	fmt.Fprintf(bw, "  %-14s %5d\n", "media uploads", r.Uploaded)
	if r.Staged > 0 {
		fmt.Fprintf(bw, "  %-14s %5d\n", "content json", r.Staged)
	}

	if len(r.Failures) == 0 {
		fmt.Fprintln(bw, "No failures.")
		return bw.Flush()
	}
	fmt.Fprintf(bw, "%d failure(s):\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(bw, "  - %s\n", f)
	}
	return bw.Flush()
}

// WriteFailures writes one tab-separated line per failure: kind, unit, key, cause.
// Nothing is created when there are no failures.
func (r *Report) WriteFailures(filename string) error {
	if len(r.Failures) == 0 || strings.TrimSpace(filename) == "" {
		return nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	for _, fl := range r.Failures {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", fl.Kind, fl.Unit, fl.Key, fl.Cause()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFailedUnits returns the distinct units named in a failures file.
func ReadFailedUnits(filename string) (map[string]bool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	units := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("malformed failures line %q", line)
		}
		if u := strings.TrimSpace(parts[1]); u != "" {
			units[u] = true
		}
	}
	return units, nil
}
