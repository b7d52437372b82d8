package domain

import (
	"strings"
)

// Chapter is the input shape: sections arrive embedded and are split off by the flattener.
type Chapter struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Order         int        `json:"order"`
	SectionsCount int        `json:"sectionsCount"`
	Sections      []*Section `json:"sections,omitempty"`
}

// ChapterDoc is what lands in chapters/{id}.
type ChapterDoc struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Order         int    `json:"order"`
	SectionsCount int    `json:"sectionsCount"`
}

func (c *Chapter) Doc() ChapterDoc {
	return ChapterDoc{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Order:         c.Order,
		SectionsCount: len(c.Sections),
	}
}

// Section lands in chapters/{chapterId}/sections/{id}. ContentRef is a weak path
// reference to the ContentDoc; nothing cascades through it.
type Section struct {
	ID          string `json:"id"`
	ChapterID   string `json:"chapterId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Progress    int    `json:"progress"`
	ContentRef  string `json:"contentRef,omitempty"`
}

// ContentDoc is stored apart from its section so list views stay small.
type ContentDoc struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content Items  `json:"content"`
}

// ContentPath is where a section's ContentDoc is stored.
func ContentPath(chapterID, sectionID string) string {
	return "content/" + chapterID + "/sections/" + sectionID
}

// RelatedSection is a snapshot copied at link time; it is not refreshed when the
// section is renamed.
type RelatedSection struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ChapterID string `json:"chapterId"`
}

type GlossaryTerm struct {
	ID              string           `json:"id"`
	Term            string           `json:"term"`
	Definition      string           `json:"definition"`
	Category        string           `json:"category"`
	RelatedTerms    []string         `json:"relatedTerms"`
	RelatedSections []RelatedSection `json:"relatedSections"`
}

func (g *GlossaryTerm) normalize() {
	g.Term = strings.TrimSpace(g.Term)
	g.RelatedTerms = dedupeStrings(g.RelatedTerms)
	if g.RelatedTerms == nil {
		g.RelatedTerms = []string{}
	}
	if g.RelatedSections == nil {
		g.RelatedSections = []RelatedSection{}
	}
}

// Record is a schema-less entity (users, quiz_results, bookmarks) passed through as-is.
type Record map[string]any

func (r Record) ID() string {
	if r == nil {
		return ""
	}
	switch v := r["id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(formatNumber(v))
	default:
		return ""
	}
}

func dedupeStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
