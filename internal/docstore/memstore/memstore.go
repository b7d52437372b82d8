// Package memstore is an in-process docstore.Store. It records every committed write in
// order and can be told to fail specific documents, which is what the importer tests use.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/yungbote/bookimport/internal/docstore"
)

const defaultMaxBatchOps = 500

// FaultFunc decides whether a write of op fails. attempt counts every time the key was tried.
type FaultFunc func(op docstore.WriteOp, attempt int) error

type Store struct {
	mu       sync.Mutex
	maxBatch int
	docs     map[string]map[string]any
	log      []docstore.WriteOp
	attempts map[string]int
	calls    int
	fault    FaultFunc
	pingErr  error
	closed   bool
}

type Option func(*Store)

func WithMaxBatchOps(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

func WithFault(f FaultFunc) Option {
	return func(s *Store) { s.fault = f }
}

// WithPingError makes Ping fail with err, standing in for a server that cannot be reached.
func WithPingError(err error) Option {
	return func(s *Store) { s.pingErr = err }
}

func New(opts ...Option) *Store {
	s := &Store{
		maxBatch: defaultMaxBatchOps,
		docs:     map[string]map[string]any{},
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errClosed = errors.New("memstore: closed")

func (s *Store) MaxBatchOps() int { return s.maxBatch }

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return s.pingErr
}

func (s *Store) Set(ctx context.Context, op docstore.WriteOp) error {
	return s.BatchCommit(ctx, []docstore.WriteOp{op})
}

// BatchCommit applies all ops or none of them.
func (s *Store) BatchCommit(ctx context.Context, ops []docstore.WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.CheckBatch(ops, s.maxBatch); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.calls++
	var failed error
	for _, op := range ops {
		key := op.Key()
		s.attempts[key]++
		if s.fault != nil && failed == nil {
			if err := s.fault(op, s.attempts[key]); err != nil {
				failed = fmt.Errorf("write %s: %w", key, err)
			}
		}
	}
	if failed != nil {
		return failed
	}
	for _, op := range ops {
		s.docs[op.Key()] = maps.Clone(op.Payload)
		s.log = append(s.log, op)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(path docstore.Path, docID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path.String()+"/"+docID]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Len is the number of distinct documents stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Writes returns every committed op in commit order, including overwrites.
func (s *Store) Writes() []docstore.WriteOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]docstore.WriteOp(nil), s.log...)
}

// Calls counts BatchCommit invocations, failed ones included.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Snapshot copies the full contents, keyed by document path.
func (s *Store) Snapshot() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]any, len(s.docs))
	for k, v := range s.docs {
		out[k] = maps.Clone(v)
	}
	return out
}
