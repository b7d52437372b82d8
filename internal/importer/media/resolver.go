// Package media uploads locally referenced images and videos of a section and rewrites
// their urls to the uploaded objects' public addresses.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/bookimport/internal/domain"
	"github.com/yungbote/bookimport/internal/observability"
	"github.com/yungbote/bookimport/internal/pkg/importerr"
	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
	"github.com/yungbote/bookimport/internal/progress"
)

const defaultUploadTimeout = 2 * time.Minute

// Uploader is the slice of the blob store the resolver needs. gcp.BucketService satisfies it.
type Uploader interface {
	Upload(ctx context.Context, key string, src io.Reader, contentType string) (string, error)
}

// MediaError describes one item left unresolved. The item keeps its original url.
type MediaError struct {
	Kind      importerr.Kind
	ChapterID string
	SectionID string
	ItemIndex int
	ItemID    string
	Path      string
	Err       error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s: content/%s/%s item %d (%s) %q: %v", e.Kind, e.ChapterID, e.SectionID, e.ItemIndex, e.ItemID, e.Path, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

type Options struct {
	// Root resolves relative local paths. Empty means the process working directory.
	Root string
	// SectionConcurrency bounds uploads of one section. Defaults to runtime.NumCPU().
	SectionConcurrency int
	// Global bounds uploads across all sections resolved concurrently. Nil means unbounded.
	Global        *semaphore.Weighted
	UploadTimeout time.Duration
	Progress      *progress.Tracker
}

type Resolver struct {
	log      *logger.Logger
	uploader Uploader
	opts     Options
}

func NewResolver(log *logger.Logger, uploader Uploader, opts Options) *Resolver {
	if opts.SectionConcurrency <= 0 {
		opts.SectionConcurrency = runtime.NumCPU()
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = defaultUploadTimeout
	}
	return &Resolver{log: log.With("service", "MediaResolver"), uploader: uploader, opts: opts}
}

// IsRemote reports whether url already points at a remote resource.
func IsRemote(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Key is the blob destination of a local file: {images|videos}/{chapterId}/{sectionId}/{basename}.
func Key(t domain.ItemType, chapterID, sectionID, localPath string) string {
	prefix := "images"
	if t == domain.ItemVideo {
		prefix = "videos"
	}
	base := path.Base(filepath.ToSlash(localPath))
	return path.Join(prefix, chapterID, sectionID, base)
}

func (r *Resolver) localPath(url string) string {
	p := strings.TrimPrefix(strings.TrimSpace(url), "file://")
	if filepath.IsAbs(p) || r.opts.Root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(r.opts.Root, p)
}

// LocalRefs lists the indexes of items whose url is a local path.
func LocalRefs(items domain.Items) []int {
	var out []int
	for i, it := range items {
		m, ok := it.(domain.MediaItem)
		if !ok {
			continue
		}
		if u := strings.TrimSpace(m.MediaURL()); u != "" && !IsRemote(u) {
			out = append(out, i)
		}
	}
	return out
}

// Resolve returns a copy of items with every local image/video url replaced by its
// uploaded address. Items that could not be resolved keep their url and are reported;
// the input is never modified. Remote urls are neither touched nor uploaded.
func (r *Resolver) Resolve(ctx context.Context, items domain.Items, chapterID, sectionID string) (domain.Items, []*MediaError) {
	out := items.Clone()
	refs := LocalRefs(out)
	if len(refs) == 0 {
		return out, nil
	}
	results := make([]*MediaError, len(out))

	var g errgroup.Group
	g.SetLimit(r.opts.SectionConcurrency)
	for _, idx := range refs {
		m := out[idx].(domain.MediaItem)
		g.Go(func() error {
			results[idx] = r.resolveOne(ctx, m, idx, chapterID, sectionID)
			return nil
		})
	}
	_ = g.Wait()

	var errs []*MediaError
	for _, me := range results {
		if me != nil {
			errs = append(errs, me)
		}
	}
	return out, errs
}

// Check reports local references that do not point at a readable regular file, without
// uploading anything. Dry runs use it.
func (r *Resolver) Check(items domain.Items, chapterID, sectionID string) []*MediaError {
	var errs []*MediaError
	for _, idx := range LocalRefs(items) {
		m := items[idx].(domain.MediaItem)
		info, err := os.Stat(r.localPath(m.MediaURL()))
		if err == nil && !info.Mode().IsRegular() {
			err = fmt.Errorf("%s is not a regular file", m.MediaURL())
		}
		if err != nil {
			errs = append(errs, &MediaError{
				Kind:      importerr.KindMissingLocalAsset,
				ChapterID: chapterID,
				SectionID: sectionID,
				ItemIndex: idx,
				ItemID:    m.ItemID(),
				Path:      m.MediaURL(),
				Err:       importerr.Tag(importerr.ErrMissingLocalAsset, err),
			})
		}
	}
	return errs
}

func (r *Resolver) resolveOne(ctx context.Context, m domain.MediaItem, idx int, chapterID, sectionID string) *MediaError {
	orig := m.MediaURL()
	fail := func(sentinel error, err error) *MediaError {
		me := &MediaError{
			Kind:      importerr.KindOf(sentinel),
			ChapterID: chapterID,
			SectionID: sectionID,
			ItemIndex: idx,
			ItemID:    m.ItemID(),
			Path:      orig,
			Err:       importerr.Tag(sentinel, err),
		}
		if errors.Is(sentinel, importerr.ErrMissingLocalAsset) {
			r.opts.Progress.MissingAsset()
		} else {
			r.opts.Progress.UploadFailed()
		}
		r.log.Warn("media item left unresolved", "kind", me.Kind, "chapter_id", chapterID, "section_id", sectionID, "item_id", me.ItemID, "path", orig, "error", err)
		return me
	}

	local := r.localPath(orig)
	f, err := os.Open(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(importerr.ErrMissingLocalAsset, err)
		}
		return fail(importerr.ErrUploadFailure, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fail(importerr.ErrUploadFailure, err)
	}
	if !info.Mode().IsRegular() {
		return fail(importerr.ErrMissingLocalAsset, fmt.Errorf("%s is not a regular file", local))
	}

	if err := ctx.Err(); err != nil {
		return fail(importerr.ErrUploadFailure, context.Cause(ctx))
	}
	if r.opts.Global != nil {
		if err := r.opts.Global.Acquire(ctx, 1); err != nil {
			return fail(importerr.ErrUploadFailure, err)
		}
		defer r.opts.Global.Release(1)
	}

	key := Key(m.ItemType(), chapterID, sectionID, local)
	// A started upload runs to completion or its own deadline.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.UploadTimeout)
	defer cancel()
	uctx, span := observability.Tracer("media").Start(uctx, "media.upload")
	span.SetAttributes(
		attribute.String("blob.key", key),
		attribute.Int64("blob.size", info.Size()),
		attribute.String("content.item_type", string(m.ItemType())),
	)
	defer span.End()

	url, err := r.uploader.Upload(uctx, key, f, gcp.ContentTypeForKey(key))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return fail(importerr.ErrUploadFailure, err)
	}
	m.SetMediaURL(url)
	r.opts.Progress.Uploaded(info.Size())
	r.log.Debug("media uploaded", "key", key, "bytes", info.Size())
	return nil
}
