// Package flatten turns an import document into the ordered write ops of the document phase.
package flatten

import (
	"iter"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/domain"
)

const (
	CollectionChapters    = "chapters"
	CollectionSections    = "sections"
	CollectionGlossary    = "glossary"
	CollectionQuizzes     = "quizzes"
	CollectionQuizResults = "quiz_results"
	CollectionUsers       = "users"
	CollectionBookmarks   = "bookmarks"
	CollectionContent     = "content"
)

// ChapterUnit is the commit unit of a chapter and all of its sections.
func ChapterUnit(chapterID string) string { return "chapter:" + chapterID }

// ContentUnitKey is the commit unit of one section's ContentDoc.
func ContentUnitKey(chapterID, sectionID string) string {
	return "content:" + chapterID + "/" + sectionID
}

// ContentUnit is one entry of the content map, walked in sorted order.
type ContentUnit struct {
	ChapterID string
	SectionID string
	Doc       *domain.ContentDoc
}

// Flatten yields the document-phase ops lazily. For every chapter the chapter op comes
// first, followed by its section ops, all in the chapter's unit. Flat collections follow,
// one unit per collection. Payload encoding errors stop the sequence and are reported
// through errp when it is non-nil.
func Flatten(doc *domain.ImportDocument, errp *error) iter.Seq[docstore.WriteOp] {
	return func(yield func(docstore.WriteOp) bool) {
		if doc == nil {
			return
		}
		fail := func(err error) {
			if errp != nil && *errp == nil {
				*errp = err
			}
		}
		emit := func(target docstore.Path, id, unit string, root bool, v any) bool {
			payload, err := docstore.PayloadOf(v)
			if err != nil {
				fail(err)
				return false
			}
			return yield(docstore.WriteOp{Target: target, DocID: id, Payload: payload, Unit: unit, Root: root})
		}

		chapters := docstore.Collection(CollectionChapters)
		for _, ch := range doc.Chapters {
			if ch == nil {
				continue
			}
			unit := ChapterUnit(ch.ID)
			if !emit(chapters, ch.ID, unit, true, ch.Doc()) {
				return
			}
			sections := chapters.Sub(ch.ID, CollectionSections)
			for _, sec := range ch.Sections {
				if sec == nil {
					continue
				}
				if !emit(sections, sec.ID, unit, false, sec) {
					return
				}
			}
		}

		for _, g := range doc.Glossary {
			if g != nil && !emit(docstore.Collection(CollectionGlossary), g.ID, CollectionGlossary, false, g) {
				return
			}
		}
		for _, q := range doc.Quizzes {
			if q != nil && !emit(docstore.Collection(CollectionQuizzes), q.ID, CollectionQuizzes, false, q) {
				return
			}
		}
		records := []struct {
			name string
			rows []domain.Record
		}{
			{CollectionQuizResults, doc.QuizResults},
			{CollectionUsers, doc.Users},
			{CollectionBookmarks, doc.Bookmarks},
		}
		for _, rc := range records {
			for _, r := range rc.rows {
				if !emit(docstore.Collection(rc.name), r.ID(), rc.name, false, r) {
					return
				}
			}
		}
	}
}

// Contents yields the content map in sorted chapter then section order.
func Contents(doc *domain.ImportDocument) iter.Seq[ContentUnit] {
	return func(yield func(ContentUnit) bool) {
		if doc == nil {
			return
		}
		for _, chID := range domain.SortedKeys(doc.Content) {
			secs := doc.Content[chID]
			for _, secID := range domain.SortedKeys(secs) {
				cd := secs[secID]
				if cd == nil {
					continue
				}
				if !yield(ContentUnit{ChapterID: chID, SectionID: secID, Doc: cd}) {
					return
				}
			}
		}
	}
}

// ContentPath is where a section's ContentDoc is written: content/{chapterId}/sections/{sectionId}.
func ContentPath(chapterID string) docstore.Path {
	return docstore.Collection(CollectionContent).Sub(chapterID, CollectionSections)
}

// ContentOp builds the write of a resolved ContentDoc. It is the root of its own unit.
func ContentOp(chapterID, sectionID string, cd *domain.ContentDoc) (docstore.WriteOp, error) {
	payload, err := docstore.PayloadOf(cd)
	if err != nil {
		return docstore.WriteOp{}, err
	}
	return docstore.WriteOp{
		Target:     ContentPath(chapterID),
		DocID:      sectionID,
		Payload:    payload,
		Unit:       ContentUnitKey(chapterID, sectionID),
		Root:       true,
		Collection: CollectionContent,
	}, nil
}

// Count reports the number of document-phase ops per collection without encoding payloads.
func Count(doc *domain.ImportDocument) map[string]int {
	out := map[string]int{}
	if doc == nil {
		return out
	}
	for _, ch := range doc.Chapters {
		if ch == nil {
			continue
		}
		out[CollectionChapters]++
		for _, sec := range ch.Sections {
			if sec != nil {
				out[CollectionSections]++
			}
		}
	}
	for _, g := range doc.Glossary {
		if g != nil {
			out[CollectionGlossary]++
		}
	}
	for _, q := range doc.Quizzes {
		if q != nil {
			out[CollectionQuizzes]++
		}
	}
	out[CollectionQuizResults] += len(doc.QuizResults)
	out[CollectionUsers] += len(doc.Users)
	out[CollectionBookmarks] += len(doc.Bookmarks)
	for range Contents(doc) {
		out[CollectionContent]++
	}
	return out
}
