// Package commit writes ops to a docstore.Store in bounded batches, one goroutine per
// commit unit, retrying transient failures.
package commit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/importer/report"
	"github.com/yungbote/bookimport/internal/observability"
	"github.com/yungbote/bookimport/internal/pkg/importerr"
	"github.com/yungbote/bookimport/internal/platform/logger"
	"github.com/yungbote/bookimport/internal/progress"
)

// ErrRootNotWritten is the cause recorded for ops skipped because their unit's root failed.
var ErrRootNotWritten = errors.New("skipped: root document of unit was not written")

type RetryPolicy struct {
	MaxAttempts int           // default 4
	MinBackoff  time.Duration // default 200ms
	MaxBackoff  time.Duration // default 5s
	JitterFrac  float64       // default 0.20
}

type Options struct {
	UnitConcurrency int
	CallTimeout     time.Duration
	Retry           RetryPolicy
	Phase           report.Phase
	Progress        *progress.Tracker
	// OnFailure is called for every failed op as it happens. It must be safe for concurrent use.
	OnFailure func(report.Failure)
}

type Coordinator struct {
	log   *logger.Logger
	store docstore.Store
	opts  Options
	sleep func(context.Context, time.Duration) error
}

func New(log *logger.Logger, store docstore.Store, opts Options) *Coordinator {
	if opts.UnitConcurrency <= 0 {
		opts.UnitConcurrency = 8
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 4
	}
	if opts.Phase == "" {
		opts.Phase = report.PhaseDocument
	}
	return &Coordinator{
		log:   log.With("service", "WriteCoordinator"),
		store: store,
		opts:  opts,
		sleep: sleepCtx,
	}
}

type unit struct {
	name string
	ops  []docstore.WriteOp
}

// group collects ops by unit, keeping first-appearance order of units and emission
// order within each unit.
func group(ops iter.Seq[docstore.WriteOp]) []*unit {
	var out []*unit
	byName := map[string]*unit{}
	for op := range ops {
		u, ok := byName[op.Unit]
		if !ok {
			u = &unit{name: op.Unit}
			byName[op.Unit] = u
			out = append(out, u)
		}
		u.ops = append(u.ops, op)
	}
	return out
}

// Commit writes every op and reports per-collection counts and every failed op.
// Units run concurrently; batches within a unit run in order. After ctx is canceled no
// new batch is started and the remaining ops are reported with the cancellation cause.
func (c *Coordinator) Commit(ctx context.Context, ops iter.Seq[docstore.WriteOp]) *report.Report {
	units := group(ops)
	results := make([]*report.Report, len(units))
	for i, u := range units {
		results[i] = report.New()
		for _, op := range u.ops {
			results[i].AddPlanned(op.Label(), 1)
		}
		c.opts.Progress.PlanOps(len(u.ops))
	}

	var g errgroup.Group
	g.SetLimit(c.opts.UnitConcurrency)
	for i, u := range units {
		g.Go(func() error {
			c.commitUnit(ctx, u, results[i])
			return nil
		})
	}
	_ = g.Wait()

	out := report.New()
	for _, r := range results {
		out.Merge(r)
	}
	return out
}

func (c *Coordinator) commitUnit(ctx context.Context, u *unit, rep *report.Report) {
	limit := c.store.MaxBatchOps()
	if limit <= 0 {
		limit = len(u.ops)
	}
	batches := chunk(u.ops, limit)
	committed := 0
	for bi, batch := range batches {
		if err := ctx.Err(); err != nil {
			c.failRest(rep, batches[bi:], context.Cause(ctx))
			return
		}
		err := c.commitBatch(ctx, u.name, batch)
		if err == nil {
			committed++
			for _, op := range batch {
				rep.AddWritten(op.Label(), 1)
			}
			c.opts.Progress.OpsWritten(len(batch))
			continue
		}

		tagged := importerr.Tag(importerr.ErrWriteFailure, err)
		if committed > 0 {
			tagged = importerr.Tag(importerr.ErrPartialBatchFailure,
				fmt.Errorf("batch %d/%d of unit %s after %d committed: %w", bi+1, len(batches), u.name, committed, tagged))
		}
		c.fail(rep, batch, tagged)
		if containsRoot(batch) {
			c.failRest(rep, batches[bi+1:], importerr.Tag(importerr.ErrWriteFailure, ErrRootNotWritten))
			return
		}
	}
}

func (c *Coordinator) fail(rep *report.Report, ops []docstore.WriteOp, err error) {
	for _, op := range ops {
		f := report.Failure{
			Phase:      c.opts.Phase,
			Collection: op.Label(),
			Key:        op.Key(),
			Unit:       op.Unit,
			Kind:       importerr.KindOf(err),
			Err:        err,
		}
		rep.Fail(f)
		if c.opts.OnFailure != nil {
			c.opts.OnFailure(f)
		}
	}
	c.opts.Progress.OpsFailed(len(ops))
	if len(ops) > 0 {
		c.log.Warn("write failed", "unit", ops[0].Unit, "ops", len(ops), "first", ops[0].Key(), "error", err)
	}
}

func (c *Coordinator) failRest(rep *report.Report, batches [][]docstore.WriteOp, cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	if !errors.Is(cause, importerr.ErrWriteFailure) {
		cause = importerr.Tag(importerr.ErrWriteFailure, cause)
	}
	for _, b := range batches {
		c.fail(rep, b, cause)
	}
}

// commitBatch retries transient failures. Each call runs detached from ctx under its own
// deadline, so a canceled run lets in-flight batches finish; retries stop once ctx is done.
func (c *Coordinator) commitBatch(ctx context.Context, unitName string, batch []docstore.WriteOp) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.Retry.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
		callCtx, span := observability.Tracer("commit").Start(callCtx, "docstore.batch_commit")
		span.SetAttributes(
			attribute.String("import.unit", unitName),
			attribute.Int("import.batch_ops", len(batch)),
			attribute.Int("import.attempt", attempt),
		)
		err := c.store.BatchCommit(callCtx, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch commit failed")
		}
		span.End()
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if !docstore.IsTransient(err) || attempt == c.opts.Retry.MaxAttempts {
			break
		}
		delay := computeBackoff(c.opts.Retry, attempt)
		c.log.Debug("retrying batch", "unit", unitName, "attempt", attempt, "delay", delay, "error", err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return errors.Join(lastErr, context.Cause(ctx))
		}
	}
	return lastErr
}

func containsRoot(ops []docstore.WriteOp) bool {
	for _, op := range ops {
		if op.Root {
			return true
		}
	}
	return false
}

func chunk(ops []docstore.WriteOp, size int) [][]docstore.WriteOp {
	if size <= 0 || len(ops) == 0 {
		return [][]docstore.WriteOp{ops}
	}
	out := make([][]docstore.WriteOp, 0, (len(ops)+size-1)/size)
	for start := 0; start < len(ops); start += size {
		end := min(start+size, len(ops))
		out = append(out, ops[start:end])
	}
	return out
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 200 * time.Millisecond
	}
	if maxB <= 0 {
		maxB = 5 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
