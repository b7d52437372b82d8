package domain

import (
	"fmt"
	"strings"
)

type InvalidItemError struct {
	ItemID string
	Type   ItemType
	Reason string
}

func (e *InvalidItemError) Error() string {
	if e == nil {
		return "invalid content item"
	}
	if e.ItemID != "" {
		return fmt.Sprintf("invalid %s item %q: %s", e.Type, e.ItemID, e.Reason)
	}
	return fmt.Sprintf("invalid %s item: %s", e.Type, e.Reason)
}

func invalid(it ContentItem, format string, args ...any) error {
	return &InvalidItemError{ItemID: it.ItemID(), Type: it.ItemType(), Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the per-type field set of a single item. Nil items are invalid.
func Validate(item ContentItem) error {
	if item == nil {
		return &InvalidItemError{Reason: "nil item"}
	}
	return item.Validate()
}

func (t *Text) Validate() error    { return requireID(t) }
func (c *Code) Validate() error    { return requireID(c) }
func (f *Formula) Validate() error { return requireID(f) }

func (t *Table) Validate() error {
	if err := requireID(t); err != nil {
		return err
	}
	if len(t.Headers) < 1 {
		return invalid(t, "at least one header is required")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return invalid(t, "row %d has %d cells, want %d", i, len(row), len(t.Headers))
		}
	}
	return nil
}

func (i *Image) Validate() error { return requireID(i) }
func (v *Video) Validate() error { return requireID(v) }

func (d *Diagram) Validate() error {
	if err := requireID(d); err != nil {
		return err
	}
	seen := make(map[string]bool, len(d.Elements))
	for idx, el := range d.Elements {
		switch el.Type {
		case ElementBlock, ElementConnector, ElementDecision, ElementInput:
		default:
			return invalid(d, "element %d has unknown type %q", idx, el.Type)
		}
		if strings.TrimSpace(el.ID) == "" {
			return invalid(d, "element %d has no id", idx)
		}
		if seen[el.ID] {
			return invalid(d, "duplicate element id %q", el.ID)
		}
		seen[el.ID] = true
		if el.Width < 0 || el.Height < 0 {
			return invalid(d, "element %q has negative size", el.ID)
		}
	}
	return nil
}

func requireID(it ContentItem) error {
	if strings.TrimSpace(it.ItemID()) == "" {
		return invalid(it, "missing id")
	}
	return nil
}

// ValidateItems checks every item and the per-document id uniqueness invariant.
func ValidateItems(items Items) error {
	seen := make(map[string]int, len(items))
	for i, it := range items {
		if err := Validate(it); err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		if prev, dup := seen[it.ItemID()]; dup {
			return fmt.Errorf("content[%d]: %w", i, invalid(it, "id already used by content[%d]", prev))
		}
		seen[it.ItemID()] = i
	}
	return nil
}
