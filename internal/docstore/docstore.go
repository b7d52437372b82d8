// Package docstore is the document-store seam of the importer. A store holds flat
// collections and one level of sub-collections; every write is a full-document replace.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Path addresses a collection: either {collection} or {collection, docID, subCollection}.
type Path []string

func Collection(name string) Path { return Path{name} }

// Sub returns the sub-collection name under document docID of p.
func (p Path) Sub(docID, name string) Path {
	out := make(Path, 0, len(p)+2)
	out = append(out, p...)
	return append(out, docID, name)
}

func (p Path) String() string { return strings.Join(p, "/") }

// Parent returns the owning collection and document of a sub-collection path.
func (p Path) Parent() (collection, docID string, ok bool) {
	if len(p) != 3 {
		return "", "", false
	}
	return p[0], p[1], true
}

// Leaf is the last collection segment: "chapters" or "sections".
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Validate() error {
	if len(p) != 1 && len(p) != 3 {
		return fmt.Errorf("%w: %q has %d segments", ErrInvalidPath, p.String(), len(p))
	}
	for _, seg := range p {
		if strings.TrimSpace(seg) == "" || strings.Contains(seg, "/") {
			return fmt.Errorf("%w: bad segment in %q", ErrInvalidPath, p.String())
		}
	}
	return nil
}

// WriteOp is a full replace of Target/DocID with Payload.
// Ops sharing a Unit are committed in emission order; the Root op of a unit must land
// before any other op of that unit is attempted.
type WriteOp struct {
	Target     Path
	DocID      string
	Payload    map[string]any
	Unit       string
	Root       bool
	// Collection labels the op in reports. Empty means Target.Leaf().
	Collection string
}

func (op WriteOp) Label() string {
	if op.Collection != "" {
		return op.Collection
	}
	return op.Target.Leaf()
}

// Key is the fully qualified document path.
func (op WriteOp) Key() string { return op.Target.String() + "/" + op.DocID }

func (op WriteOp) Validate() error {
	if err := op.Target.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(op.DocID) == "" || strings.Contains(op.DocID, "/") {
		return fmt.Errorf("%w: bad document id %q under %q", ErrInvalidPath, op.DocID, op.Target.String())
	}
	return nil
}

// Store is implemented by every backend. BatchCommit is atomic for at most MaxBatchOps ops.
type Store interface {
	Set(ctx context.Context, op WriteOp) error
	BatchCommit(ctx context.Context, ops []WriteOp) error
	MaxBatchOps() int
	Close() error
}

// Pinger is implemented by stores whose constructor does not talk to the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	ErrInvalidPath   = errors.New("invalid document path")
	ErrBatchTooLarge = errors.New("batch exceeds store limit")
)

// CheckBatch validates ops against the store limit. Backends call it before talking to the server.
func CheckBatch(ops []WriteOp, limit int) error {
	if limit > 0 && len(ops) > limit {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ops), limit)
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PayloadOf turns a JSON-tagged value into a write payload. Integral numbers come back
// as int64 so stores keep them as integers.
func PayloadOf(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	for k, val := range out {
		out[k] = fromJSONNumbers(val)
	}
	return out, nil
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = fromJSONNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = fromJSONNumbers(val)
		}
		return t
	default:
		return v
	}
}
