// Package importer runs a full import: the document phase writes chapters, sections and
// the flat collections; the content phase resolves media and writes every ContentDoc.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/domain"
	"github.com/yungbote/bookimport/internal/importer/commit"
	"github.com/yungbote/bookimport/internal/importer/flatten"
	"github.com/yungbote/bookimport/internal/importer/media"
	"github.com/yungbote/bookimport/internal/importer/report"
	"github.com/yungbote/bookimport/internal/importer/staging"
	"github.com/yungbote/bookimport/internal/pkg/importerr"
	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
	"github.com/yungbote/bookimport/internal/progress"
)

type Policy string

const (
	ContinueOnError Policy = "continue-on-error"
	FailFast        Policy = "fail-fast"
)

type Options struct {
	Policy Policy
	DryRun bool
	// UnitConcurrency bounds concurrent commit units and concurrently resolved sections.
	UnitConcurrency int
	// UploadConcurrency bounds uploads across all sections; SectionUploadConcurrency within one.
	UploadConcurrency        int
	SectionUploadConcurrency int
	WriteTimeout             time.Duration
	UploadTimeout            time.Duration
	MaxAttempts              int
	MediaRoot                string
	StagingDir               string
	// UploadContentJSON also uploads each resolved ContentDoc as content/{ch}/{sec}.json.
	UploadContentJSON bool
	// OnlyUnits restricts the run to the named commit units. Empty means everything.
	OnlyUnits map[string]bool
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = ContinueOnError
	}
	if o.UnitConcurrency <= 0 {
		o.UnitConcurrency = 8
	}
	if o.UploadConcurrency <= 0 {
		o.UploadConcurrency = 16
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 2 * time.Minute
	}
	return o
}

type Importer struct {
	log     *logger.Logger
	store   docstore.Store
	blobs   media.Uploader
	opts    Options
	tracker *progress.Tracker
}

// New builds an importer. blobs may be nil, in which case every upload fails.
func New(log *logger.Logger, store docstore.Store, blobs media.Uploader, tracker *progress.Tracker, opts Options) *Importer {
	if blobs == nil {
		blobs = noBlobStore{}
	}
	return &Importer{
		log:     log.With("service", "Importer"),
		store:   store,
		blobs:   blobs,
		opts:    opts.withDefaults(),
		tracker: tracker,
	}
}

type noBlobStore struct{}

var errNoBlobStore = errors.New("no blob store configured")

func (noBlobStore) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", errNoBlobStore
}

// LoadFile reads and prepares an import document. Every failure is ErrInvalidInput.
func LoadFile(path string) (*domain.ImportDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, importerr.InvalidInput("open import document: %v", err)
	}
	defer f.Close()
	return domain.Decode(f)
}

// Run imports doc. Item-level failures are collected in the report; the returned error is
// non-nil only when the run as a whole failed (fail-fast tripped, invalid input or a
// document store that accepted no writes).
func (im *Importer) Run(ctx context.Context, doc *domain.ImportDocument) (*report.Report, error) {
	rep := report.New()
	rep.Started = time.Now()
	defer func() { rep.Finished = time.Now() }()
	if doc == nil {
		return rep, importerr.InvalidInput("nil import document")
	}

	resolver := media.NewResolver(im.log, im.blobs, media.Options{
		Root:               im.opts.MediaRoot,
		SectionConcurrency: im.opts.SectionUploadConcurrency,
		Global:             semaphore.NewWeighted(int64(im.opts.UploadConcurrency)),
		UploadTimeout:      im.opts.UploadTimeout,
		Progress:           im.tracker,
	})

	if im.opts.DryRun {
		return im.dryRun(doc, resolver, rep)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var (
		tripOnce  sync.Once
		firstFail error
	)
	onFailure := func(f report.Failure) {
		if im.opts.Policy != FailFast {
			return
		}
		tripOnce.Do(func() {
			firstFail = fmt.Errorf("%s %s: %w", f.Phase, f.Key, f.Err)
			im.log.Error("fail-fast policy tripped", "key", f.Key, "kind", f.Kind, "error", f.Err)
			cancel(fmt.Errorf("%w: %s", importerr.ErrFailFast, f.Key))
		})
	}

	docCoord := commit.New(im.log, im.store, im.commitOptions(report.PhaseDocument, onFailure))
	var flatErr error
	docRep := docCoord.Commit(ctx, im.filter(flatten.Flatten(doc, &flatErr)))
	rep.Merge(docRep)
	if flatErr != nil {
		return rep, importerr.Tag(importerr.ErrInvalidInput, flatErr)
	}
	im.log.Info("document phase finished", "written", docRep.Written, "failures", len(docRep.Failures))
	if err := storeUnreachable(docRep); err != nil {
		rep.Sort()
		im.log.Error("document store accepted no writes", "failures", len(docRep.Failures), "error", err)
		return rep, err
	}

	contentRep, err := im.contentPhase(ctx, doc, resolver, onFailure)
	rep.Merge(contentRep)
	rep.Sort()
	if err != nil {
		return rep, err
	}
	if firstFail != nil {
		return rep, errors.Join(importerr.ErrFailFast, firstFail)
	}
	return rep, nil
}

// storeUnreachable reports a run whose document phase wrote nothing and failed only on
// retryable store errors, plus the ops skipped behind them. That is an outage, not a
// set of bad documents, so continue-on-error does not apply.
func storeUnreachable(docRep *report.Report) error {
	if len(docRep.Failures) == 0 {
		return nil
	}
	for _, n := range docRep.Written {
		if n > 0 {
			return nil
		}
	}
	var cause error
	for _, f := range docRep.Failures {
		switch {
		case errors.Is(f.Err, commit.ErrRootNotWritten):
		case docstore.IsTransient(f.Err):
			if cause == nil {
				cause = fmt.Errorf("%s: %w", f.Key, f.Err)
			}
		default:
			return nil
		}
	}
	if cause == nil {
		return nil
	}
	return errors.Join(importerr.ErrStoreUnreachable, cause)
}

func (im *Importer) commitOptions(phase report.Phase, onFailure func(report.Failure)) commit.Options {
	return commit.Options{
		UnitConcurrency: im.opts.UnitConcurrency,
		CallTimeout:     im.opts.WriteTimeout,
		Retry:           commit.RetryPolicy{MaxAttempts: im.opts.MaxAttempts},
		Phase:           phase,
		Progress:        im.tracker,
		OnFailure:       onFailure,
	}
}

func (im *Importer) filter(ops iter.Seq[docstore.WriteOp]) iter.Seq[docstore.WriteOp] {
	if len(im.opts.OnlyUnits) == 0 {
		return ops
	}
	return func(yield func(docstore.WriteOp) bool) {
		for op := range ops {
			if im.opts.OnlyUnits[op.Unit] && !yield(op) {
				return
			}
		}
	}
}

func (im *Importer) selectedContent(doc *domain.ImportDocument) []flatten.ContentUnit {
	var out []flatten.ContentUnit
	for u := range flatten.Contents(doc) {
		if len(im.opts.OnlyUnits) > 0 && !im.opts.OnlyUnits[flatten.ContentUnitKey(u.ChapterID, u.SectionID)] {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (im *Importer) contentPhase(ctx context.Context, doc *domain.ImportDocument, resolver *media.Resolver, onFailure func(report.Failure)) (*report.Report, error) {
	units := im.selectedContent(doc)
	out := report.New()
	if len(units) == 0 {
		return out, nil
	}
	im.tracker.PlanContent(len(units))

	var area *staging.Area
	if im.opts.UploadContentJSON {
		a, err := staging.New(im.opts.StagingDir)
		if err != nil {
			return out, fmt.Errorf("content phase: %w", err)
		}
		area = a
		defer func() {
			if err := area.Close(); err != nil {
				im.log.Warn("staging cleanup failed", "dir", area.Root(), "error", err)
			}
		}()
	}

	coord := commit.New(im.log, im.store, im.commitOptions(report.PhaseContent, onFailure))
	results := make([]*report.Report, len(units))
	var g errgroup.Group
	g.SetLimit(im.opts.UnitConcurrency)
	for i, u := range units {
		g.Go(func() error {
			results[i] = im.importSection(ctx, u, resolver, coord, area, onFailure)
			im.tracker.ContentDone()
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		out.Merge(r)
	}
	return out, nil
}

func (im *Importer) importSection(
	ctx context.Context,
	u flatten.ContentUnit,
	resolver *media.Resolver,
	coord *commit.Coordinator,
	area *staging.Area,
	onFailure func(report.Failure),
) *report.Report {
	rep := report.New()
	unitKey := flatten.ContentUnitKey(u.ChapterID, u.SectionID)
	docKey := flatten.ContentPath(u.ChapterID).String() + "/" + u.SectionID
	fail := func(f report.Failure) {
		f.Unit = unitKey
		if f.Kind == "" {
			f.Kind = importerr.KindOf(f.Err)
		}
		rep.Fail(f)
		if onFailure != nil {
			onFailure(f)
		}
	}

	if err := ctx.Err(); err != nil {
		rep.AddPlanned(flatten.CollectionContent, 1)
		fail(report.Failure{
			Phase:      report.PhaseContent,
			Collection: flatten.CollectionContent,
			Key:        docKey,
			Err:        importerr.Tag(importerr.ErrWriteFailure, context.Cause(ctx)),
		})
		return rep
	}

	resolved, merrs := resolver.Resolve(ctx, u.Doc.Content, u.ChapterID, u.SectionID)
	uploaded := len(media.LocalRefs(u.Doc.Content)) - len(merrs)
	rep.Uploaded += uploaded
	for _, me := range merrs {
		fail(report.Failure{
			Phase:      report.PhaseMedia,
			Collection: flatten.CollectionContent,
			Key:        docKey + "#" + me.ItemID,
			Kind:       me.Kind,
			Err:        me,
		})
	}
	cd := &domain.ContentDoc{ID: u.SectionID, Title: u.Doc.Title, Content: resolved}

	if area != nil {
		if err := im.stageContentJSON(ctx, area, u, cd); err != nil {
			fail(report.Failure{
				Phase:      report.PhaseStaging,
				Collection: flatten.CollectionContent,
				Key:        contentJSONKey(u.ChapterID, u.SectionID),
				Err:        err,
			})
		} else {
			rep.Staged++
		}
	}

	op, err := flatten.ContentOp(u.ChapterID, u.SectionID, cd)
	if err != nil {
		rep.AddPlanned(flatten.CollectionContent, 1)
		fail(report.Failure{
			Phase:      report.PhaseContent,
			Collection: flatten.CollectionContent,
			Key:        docKey,
			Err:        importerr.Tag(importerr.ErrWriteFailure, err),
		})
		return rep
	}
	rep.Merge(coord.Commit(ctx, slices.Values([]docstore.WriteOp{op})))
	return rep
}

func contentJSONKey(chapterID, sectionID string) string {
	return "content/" + chapterID + "/" + sectionID + ".json"
}

// stageContentJSON writes the resolved ContentDoc into the staging area and uploads it
// next to the media of its section.
func (im *Importer) stageContentJSON(ctx context.Context, area *staging.Area, u flatten.ContentUnit, cd *domain.ContentDoc) error {
	key := contentJSONKey(u.ChapterID, u.SectionID)
	p, err := area.WriteJSON(key, cd)
	if err != nil {
		return importerr.Tag(importerr.ErrUploadFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return importerr.Tag(importerr.ErrUploadFailure, context.Cause(ctx))
	}
	f, err := os.Open(p)
	if err != nil {
		return importerr.Tag(importerr.ErrUploadFailure, err)
	}
	defer f.Close()
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), im.opts.UploadTimeout)
	defer cancel()
	if _, err := im.blobs.Upload(uctx, key, f, gcp.ContentTypeForKey(key)); err != nil {
		return importerr.Tag(importerr.ErrUploadFailure, err)
	}
	return nil
}

// dryRun validates that every op encodes and every local media file exists. Nothing is
// written or uploaded.
func (im *Importer) dryRun(doc *domain.ImportDocument, resolver *media.Resolver, rep *report.Report) (*report.Report, error) {
	rep.DryRun = true
	var flatErr error
	for op := range im.filter(flatten.Flatten(doc, &flatErr)) {
		rep.AddPlanned(op.Label(), 1)
	}
	if flatErr != nil {
		return rep, importerr.Tag(importerr.ErrInvalidInput, flatErr)
	}
	for _, u := range im.selectedContent(doc) {
		rep.AddPlanned(flatten.CollectionContent, 1)
		if _, err := flatten.ContentOp(u.ChapterID, u.SectionID, u.Doc); err != nil {
			return rep, importerr.Tag(importerr.ErrInvalidInput, err)
		}
		docKey := flatten.ContentPath(u.ChapterID).String() + "/" + u.SectionID
		for _, me := range resolver.Check(u.Doc.Content, u.ChapterID, u.SectionID) {
			rep.Fail(report.Failure{
				Phase:      report.PhaseMedia,
				Collection: flatten.CollectionContent,
				Key:        docKey + "#" + me.ItemID,
				Unit:       flatten.ContentUnitKey(u.ChapterID, u.SectionID),
				Kind:       me.Kind,
				Err:        me,
			})
		}
	}
	rep.Sort()
	im.log.Info("dry run finished", "planned", rep.Planned, "missing_assets", len(rep.Failures))
	return rep, nil
}

// Describe is a one-line description of the options for logs.
func (o Options) Describe() string {
	parts := []string{
		"policy=" + string(o.Policy),
		fmt.Sprintf("units=%d", o.UnitConcurrency),
		fmt.Sprintf("uploads=%d", o.UploadConcurrency),
	}
	if o.DryRun {
		parts = append(parts, "dry-run")
	}
	if len(o.OnlyUnits) > 0 {
		parts = append(parts, fmt.Sprintf("only=%d units", len(o.OnlyUnits)))
	}
	return strings.Join(parts, " ")
}
