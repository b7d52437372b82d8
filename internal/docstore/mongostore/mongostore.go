// Package mongostore backs docstore.Store with MongoDB. Mongo has no sub-collections, so
// {parent}/{id}/{sub} is stored in collection "{parent}_{sub}" keyed by "{id}/{docId}",
// with "_parent" and "_docId" fields carrying the two halves.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

const (
	defaultMaxBatchOps = 1000
	ParentField        = "_parent"
	DocIDField         = "_docId"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

func New(ctx context.Context, log *logger.Logger, uri, database string) (*Store, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		log:    log.With("service", "MongoStore"),
	}, nil
}

func (s *Store) MaxBatchOps() int { return defaultMaxBatchOps }

// CollectionName maps a store path onto a flat Mongo collection.
func CollectionName(p docstore.Path) string {
	if coll, _, ok := p.Parent(); ok {
		return coll + "_" + p[2]
	}
	return p.String()
}

// DocumentID is the _id of op within its Mongo collection. Sub-collection documents are
// prefixed with their parent id so sections sharing an id across chapters stay distinct.
func DocumentID(op docstore.WriteOp) string {
	if _, parentID, ok := op.Target.Parent(); ok {
		return parentID + "/" + op.DocID
	}
	return op.DocID
}

// Document builds the stored form of op: payload plus _id and, for sub-collections,
// _parent and _docId.
func Document(op docstore.WriteOp) bson.M {
	doc := make(bson.M, len(op.Payload)+3)
	for k, v := range op.Payload {
		doc[k] = v
	}
	doc["_id"] = DocumentID(op)
	if _, parentID, ok := op.Target.Parent(); ok {
		doc[ParentField] = parentID
		doc[DocIDField] = op.DocID
	}
	return doc
}

func (s *Store) Set(ctx context.Context, op docstore.WriteOp) error {
	if err := op.Validate(); err != nil {
		return err
	}
	_, err := s.db.Collection(CollectionName(op.Target)).
		ReplaceOne(ctx, bson.M{"_id": DocumentID(op)}, Document(op), options.Replace().SetUpsert(true))
	if err != nil {
		return classify(fmt.Errorf("mongo replace %s: %w", op.Key(), err))
	}
	return nil
}

// BatchCommit issues one ordered bulk write per run of consecutive ops that share a
// collection. Runs are applied in order and a failure stops the remaining runs, so the
// batch is ordered but not atomic across collections.
func (s *Store) BatchCommit(ctx context.Context, ops []docstore.WriteOp) error {
	if err := docstore.CheckBatch(ops, defaultMaxBatchOps); err != nil {
		return err
	}
	for _, run := range Runs(ops) {
		models := make([]mongo.WriteModel, 0, len(run))
		for _, op := range run {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": DocumentID(op)}).
				SetReplacement(Document(op)).
				SetUpsert(true))
		}
		coll := CollectionName(run[0].Target)
		if _, err := s.db.Collection(coll).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return classify(fmt.Errorf("mongo bulk write to %s (%d ops): %w", coll, len(run), err))
		}
	}
	return nil
}

// Runs splits ops into maximal consecutive groups targeting the same collection.
func Runs(ops []docstore.WriteOp) [][]docstore.WriteOp {
	var out [][]docstore.WriteOp
	for i := 0; i < len(ops); {
		name := CollectionName(ops[i].Target)
		j := i + 1
		for j < len(ops) && CollectionName(ops[j].Target) == name {
			j++
		}
		out = append(out, ops[i:j])
		i = j
	}
	return out
}

func classify(err error) error {
	var se mongo.ServerError
	switch {
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return docstore.MarkTransient(err)
	case errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError"):
		return docstore.MarkTransient(err)
	}
	return err
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
