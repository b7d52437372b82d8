package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/bookimport/internal/pkg/importerr"
)

// ImportDocument is the root of an import file. Every key is optional.
type ImportDocument struct {
	Chapters    []*Chapter                        `json:"chapters,omitempty"`
	Glossary    []*GlossaryTerm                   `json:"glossary,omitempty"`
	Quizzes     []*Quiz                           `json:"quizzes,omitempty"`
	QuizResults []Record                          `json:"quiz_results,omitempty"`
	Users       []Record                          `json:"users,omitempty"`
	Bookmarks   []Record                          `json:"bookmarks,omitempty"`
	Content     map[string]map[string]*ContentDoc `json:"content,omitempty"`
}

// idNamespace seeds ids derived for entities that arrive without one. Derived ids
// depend only on the entity's position, so re-importing the same file is stable.
var idNamespace = uuid.MustParse("6f1c2e4a-3b57-4d0e-9a51-2c8f7d1e0b93")

func derivedID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

// checkID rejects ids that cannot be used as a single path segment. Ids become document
// keys and parts of object keys such as images/{chapterId}/{sectionId}/{file}.
func checkID(id string) error {
	switch {
	case id == ".", id == "..":
		return fmt.Errorf("id %q is a relative path segment", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("id %q contains a path separator", id)
	}
	return nil
}

// Decode parses and prepares an import document. Any failure is tagged ErrInvalidInput.
func Decode(r io.Reader) (*ImportDocument, error) {
	var doc ImportDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, importerr.InvalidInput("decode import document: %v", err)
	}
	if err := doc.Prepare(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Prepare assigns missing ids, applies normalization and validates the whole tree.
// All problems are reported together.
func (d *ImportDocument) Prepare() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	chapterIDs := map[string]bool{}
	for i, ch := range d.Chapters {
		if ch == nil {
			add(fmt.Errorf("chapters[%d]: null chapter", i))
			continue
		}
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			ch.ID = derivedID("chapters", strconv.Itoa(i))
		}
		if err := checkID(ch.ID); err != nil {
			add(fmt.Errorf("chapters[%d]: %w", i, err))
		}
		if chapterIDs[ch.ID] {
			add(fmt.Errorf("chapters[%d]: duplicate chapter id %q", i, ch.ID))
		}
		chapterIDs[ch.ID] = true
		if ch.Order < 0 {
			add(fmt.Errorf("chapter %q: order must be >= 0, got %d", ch.ID, ch.Order))
		}
		sectionIDs := map[string]bool{}
		for j, sec := range ch.Sections {
			if sec == nil {
				add(fmt.Errorf("chapter %q: sections[%d] is null", ch.ID, j))
				continue
			}
			sec.ID = strings.TrimSpace(sec.ID)
			if sec.ID == "" {
				sec.ID = derivedID("chapters", ch.ID, "sections", strconv.Itoa(j))
			}
			if err := checkID(sec.ID); err != nil {
				add(fmt.Errorf("chapter %q: sections[%d]: %w", ch.ID, j, err))
			}
			if sectionIDs[sec.ID] {
				add(fmt.Errorf("chapter %q: duplicate section id %q", ch.ID, sec.ID))
			}
			sectionIDs[sec.ID] = true
			sec.ChapterID = ch.ID
			if sec.Order < 0 {
				add(fmt.Errorf("section %q: order must be >= 0, got %d", sec.ID, sec.Order))
			}
			if sec.Progress < 0 || sec.Progress > 100 {
				add(fmt.Errorf("section %q: progress must be within [0,100], got %d", sec.ID, sec.Progress))
			}
			if strings.TrimSpace(sec.ContentRef) == "" {
				sec.ContentRef = ContentPath(ch.ID, sec.ID)
			}
		}
	}

	glossaryIDs := map[string]bool{}
	for i, g := range d.Glossary {
		if g == nil {
			add(fmt.Errorf("glossary[%d]: null term", i))
			continue
		}
		if strings.TrimSpace(g.ID) == "" {
			g.ID = derivedID("glossary", strconv.Itoa(i))
		}
		g.normalize()
		if err := checkID(g.ID); err != nil {
			add(fmt.Errorf("glossary[%d]: %w", i, err))
		}
		if glossaryIDs[g.ID] {
			add(fmt.Errorf("glossary[%d]: duplicate term id %q", i, g.ID))
		}
		glossaryIDs[g.ID] = true
		if g.Term == "" {
			add(fmt.Errorf("glossary term %q: term is required", g.ID))
		}
	}

	quizIDs := map[string]bool{}
	for i, q := range d.Quizzes {
		if q == nil {
			add(fmt.Errorf("quizzes[%d]: null quiz", i))
			continue
		}
		if strings.TrimSpace(q.ID) == "" {
			q.ID = derivedID("quizzes", strconv.Itoa(i))
		}
		if err := checkID(q.ID); err != nil {
			add(fmt.Errorf("quizzes[%d]: %w", i, err))
		}
		if quizIDs[q.ID] {
			add(fmt.Errorf("quizzes[%d]: duplicate quiz id %q", i, q.ID))
		}
		quizIDs[q.ID] = true
		for j, question := range q.Questions {
			if question != nil && strings.TrimSpace(question.ID) == "" {
				question.ID = derivedID("quizzes", q.ID, "questions", strconv.Itoa(j))
			}
		}
		add(q.Normalize())
	}

	add(assignRecordIDs("quiz_results", d.QuizResults))
	add(assignRecordIDs("users", d.Users))
	add(assignRecordIDs("bookmarks", d.Bookmarks))

	for _, chapterID := range sortedKeys(d.Content) {
		if err := checkID(chapterID); err != nil {
			add(fmt.Errorf("content: chapter key: %w", err))
			continue
		}
		for _, sectionID := range sortedKeys(d.Content[chapterID]) {
			if err := checkID(sectionID); err != nil {
				add(fmt.Errorf("content %s: section key: %w", chapterID, err))
				continue
			}
			doc := d.Content[chapterID][sectionID]
			if doc == nil {
				add(fmt.Errorf("content %s/%s: null document", chapterID, sectionID))
				continue
			}
			doc.ID = sectionID
			for k, item := range doc.Content {
				if item != nil && strings.TrimSpace(item.ItemID()) == "" {
					item.setID(derivedID("content", chapterID, sectionID, strconv.Itoa(k)))
				}
			}
			if err := ValidateItems(doc.Content); err != nil {
				add(fmt.Errorf("content %s/%s: %w", chapterID, sectionID, err))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{importerr.ErrInvalidInput}, errs...)...)
}

func assignRecordIDs(collection string, records []Record) error {
	seen := map[string]bool{}
	for i, r := range records {
		if r == nil {
			return fmt.Errorf("%s[%d]: null record", collection, i)
		}
		id := r.ID()
		if id == "" {
			id = derivedID(collection, strconv.Itoa(i))
		}
		r["id"] = id
		if err := checkID(id); err != nil {
			return fmt.Errorf("%s[%d]: %w", collection, i, err)
		}
		if seen[id] {
			return fmt.Errorf("%s[%d]: duplicate id %q", collection, i, id)
		}
		seen[id] = true
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedKeys is exported for callers that walk the content map deterministically.
func SortedKeys[V any](m map[string]V) []string { return sortedKeys(m) }

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
