// Package firestorestore backs docstore.Store with Cloud Firestore. Sub-collections map
// directly onto Firestore sub-collections.
package firestorestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

// Firestore rejects transactions with more than 500 writes.
const maxWritesPerCommit = 500

const (
	pingCollection = "_bookimport"
	pingDoc        = "ping"
)

type Store struct {
	client *firestore.Client
	log    *logger.Logger
}

// New connects to projectID. FIRESTORE_EMULATOR_HOST is honored by the client library.
func New(ctx context.Context, log *logger.Logger, projectID string, opts ...option.ClientOption) (*Store, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client, log: log.With("service", "FirestoreStore")}, nil
}

func (s *Store) MaxBatchOps() int { return maxWritesPerCommit }

// Ping reads a sentinel document. NewClient dials lazily, so this is the first round trip.
// A missing document still proves the server answered.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(pingCollection).Doc(pingDoc).Get(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return fmt.Errorf("firestore ping: %w", err)
}

func (s *Store) ref(op docstore.WriteOp) *firestore.DocumentRef {
	if coll, docID, ok := op.Target.Parent(); ok {
		return s.client.Collection(coll).Doc(docID).Collection(op.Target.Leaf()).Doc(op.DocID)
	}
	return s.client.Collection(op.Target[0]).Doc(op.DocID)
}

func (s *Store) Set(ctx context.Context, op docstore.WriteOp) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if _, err := s.ref(op).Set(ctx, op.Payload); err != nil {
		return fmt.Errorf("firestore set %s: %w", op.Key(), err)
	}
	return nil
}

// BatchCommit runs the ops in one transaction. The transaction is attempted once;
// retrying is the caller's decision.
func (s *Store) BatchCommit(ctx context.Context, ops []docstore.WriteOp) error {
	if err := docstore.CheckBatch(ops, maxWritesPerCommit); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, op := range ops {
			if err := tx.Set(s.ref(op), op.Payload); err != nil {
				return err
			}
		}
		return nil
	}, firestore.MaxAttempts(1))
	if err != nil {
		s.log.Debug("firestore batch failed", "ops", len(ops), "first", ops[0].Key(), "error", err)
		return fmt.Errorf("firestore commit of %d ops: %w", len(ops), err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
