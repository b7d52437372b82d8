package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ItemType string

const (
	ItemText    ItemType = "text"
	ItemCode    ItemType = "code"
	ItemFormula ItemType = "formula"
	ItemTable   ItemType = "table"
	ItemImage   ItemType = "image"
	ItemVideo   ItemType = "video"
	ItemDiagram ItemType = "diagram"
)

// ContentItem is one element of a section body. Concrete variants are
// *Text, *Code, *Formula, *Table, *Image, *Video and *Diagram.
type ContentItem interface {
	ItemID() string
	ItemType() ItemType
	Validate() error
	setID(id string)
}

// MediaItem is implemented by the variants whose url may point at a local file.
type MediaItem interface {
	ContentItem
	MediaURL() string
	SetMediaURL(url string)
}

type Text struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	IsHighlighted bool   `json:"isHighlighted"`
}

type Code struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Caption  string `json:"caption"`
}

type Formula struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Caption  string `json:"caption"`
	IsInline bool   `json:"isInline"`
}

type Image struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Caption     string `json:"caption"`
	Description string `json:"description"`
}

type Video struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type DiagramElementType string

const (
	ElementBlock     DiagramElementType = "block"
	ElementConnector DiagramElementType = "connector"
	ElementDecision  DiagramElementType = "decision"
	ElementInput     DiagramElementType = "input"
)

// DiagramElement connections reference other element ids of the same diagram.
// Dangling ids are kept as-is.
type DiagramElement struct {
	ID          string             `json:"id"`
	Type        DiagramElementType `json:"type"`
	Text        string             `json:"text"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
	Width       float64            `json:"width"`
	Height      float64            `json:"height"`
	Connections []string           `json:"connections"`
}

type Diagram struct {
	ID       string           `json:"id"`
	Elements []DiagramElement `json:"elements"`
	Caption  string           `json:"caption"`
}

func (t *Text) ItemID() string    { return t.ID }
func (c *Code) ItemID() string    { return c.ID }
func (f *Formula) ItemID() string { return f.ID }
func (t *Table) ItemID() string   { return t.ID }
func (i *Image) ItemID() string   { return i.ID }
func (v *Video) ItemID() string   { return v.ID }
func (d *Diagram) ItemID() string { return d.ID }

func (t *Text) ItemType() ItemType    { return ItemText }
func (c *Code) ItemType() ItemType    { return ItemCode }
func (f *Formula) ItemType() ItemType { return ItemFormula }
func (t *Table) ItemType() ItemType   { return ItemTable }
func (i *Image) ItemType() ItemType   { return ItemImage }
func (v *Video) ItemType() ItemType   { return ItemVideo }
func (d *Diagram) ItemType() ItemType { return ItemDiagram }

func (t *Text) setID(id string)    { t.ID = id }
func (c *Code) setID(id string)    { c.ID = id }
func (f *Formula) setID(id string) { f.ID = id }
func (t *Table) setID(id string)   { t.ID = id }
func (i *Image) setID(id string)   { i.ID = id }
func (v *Video) setID(id string)   { v.ID = id }
func (d *Diagram) setID(id string) { d.ID = id }

func (i *Image) MediaURL() string       { return i.URL }
func (i *Image) SetMediaURL(url string) { i.URL = url }
func (v *Video) MediaURL() string       { return v.URL }
func (v *Video) SetMediaURL(url string) { v.URL = url }

// Each variant marshals with its discriminant so stored documents stay self-describing.

func (t Text) MarshalJSON() ([]byte, error) {
	type alias Text
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemText, alias(t)})
}

func (c Code) MarshalJSON() ([]byte, error) {
	type alias Code
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemCode, alias(c)})
}

func (f Formula) MarshalJSON() ([]byte, error) {
	type alias Formula
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemFormula, alias(f)})
}

func (t Table) MarshalJSON() ([]byte, error) {
	type alias Table
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemTable, alias(t)})
}

func (i Image) MarshalJSON() ([]byte, error) {
	type alias Image
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemImage, alias(i)})
}

func (v Video) MarshalJSON() ([]byte, error) {
	type alias Video
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemVideo, alias(v)})
}

func (d Diagram) MarshalJSON() ([]byte, error) {
	type alias Diagram
	return json.Marshal(struct {
		Type ItemType `json:"type"`
		alias
	}{ItemDiagram, alias(d)})
}

// Items is an ordered section body. It decodes by inspecting each element's `type`.
type Items []ContentItem

func (items *Items) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Items, 0, len(raws))
	for i, raw := range raws {
		if strings.TrimSpace(string(raw)) == "null" {
			// Editors occasionally leave holes in the array.
			continue
		}
		item, err := DecodeItem(raw)
		if err != nil {
			return fmt.Errorf("content[%d]: %w", i, err)
		}
		out = append(out, item)
	}
	*items = out
	return nil
}

func DecodeItem(raw []byte) (ContentItem, error) {
	var head struct {
		Type ItemType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	var item ContentItem
	switch ItemType(strings.ToLower(strings.TrimSpace(string(head.Type)))) {
	case ItemText:
		item = &Text{}
	case ItemCode:
		item = &Code{}
	case ItemFormula:
		item = &Formula{}
	case ItemTable:
		item = &Table{}
	case ItemImage:
		item = &Image{}
	case ItemVideo:
		item = &Video{}
	case ItemDiagram:
		item = &Diagram{}
	default:
		return nil, &InvalidItemError{Type: head.Type, Reason: fmt.Sprintf("unknown content type %q", head.Type)}
	}
	if err := json.Unmarshal(raw, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Clone copies the slice and every media item so url rewrites never touch the input.
func (items Items) Clone() Items {
	out := make(Items, len(items))
	for i, it := range items {
		switch v := it.(type) {
		case *Image:
			c := *v
			out[i] = &c
		case *Video:
			c := *v
			out[i] = &c
		default:
			out[i] = it
		}
	}
	return out
}
