// Package sqlstore keeps documents in one relational table through gorm. It runs on
// Postgres in deployments and on SQLite for local imports and tests.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

const defaultMaxBatchOps = 500

// Document is one stored document. Sub-collection rows carry their parent path so a
// chapter's sections can be listed with a single index lookup.
type Document struct {
	CollectionPath string         `gorm:"column:collection_path;primaryKey;size:512"`
	DocID          string         `gorm:"column:doc_id;primaryKey;size:255"`
	ParentPath     string         `gorm:"column:parent_path;size:512;index"`
	Payload        datatypes.JSON `gorm:"column:payload;not null"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null"`
}

func (Document) TableName() string { return "documents" }

type Store struct {
	db       *gorm.DB
	log      *logger.Logger
	maxBatch int
}

func OpenPostgres(log *logger.Logger, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return Open(log, postgres.Open(dsn))
}

func OpenSQLite(log *logger.Logger, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	return Open(log, sqlite.Open(path))
}

// Open connects with dialector and migrates the documents table.
func Open(log *logger.Logger, dialector gorm.Dialector) (*Store, error) {
	serviceLog := log.With("service", "SQLStore")
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		serviceLog.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &Store{db: db, log: serviceLog, maxBatch: defaultMaxBatchOps}, nil
}

func (s *Store) MaxBatchOps() int { return s.maxBatch }

func (s *Store) DB() *gorm.DB { return s.db }

func toRow(op docstore.WriteOp, now time.Time) (Document, error) {
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s: %w", op.Key(), err)
	}
	row := Document{
		CollectionPath: op.Target.String(),
		DocID:          op.DocID,
		Payload:        datatypes.JSON(payload),
		UpdatedAt:      now,
	}
	if coll, docID, ok := op.Target.Parent(); ok {
		row.ParentPath = coll + "/" + docID
	}
	return row, nil
}

var upsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "collection_path"}, {Name: "doc_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"payload", "parent_path", "updated_at"}),
}

func (s *Store) Set(ctx context.Context, op docstore.WriteOp) error {
	return s.BatchCommit(ctx, []docstore.WriteOp{op})
}

// BatchCommit upserts every op inside one transaction.
func (s *Store) BatchCommit(ctx context.Context, ops []docstore.WriteOp) error {
	if err := docstore.CheckBatch(ops, s.maxBatch); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]Document, 0, len(ops))
	for _, op := range ops {
		row, err := toRow(op, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rows are upserted one at a time: a multi-row upsert touching the same key twice
		// is rejected by Postgres.
		for i := range rows {
			if err := tx.Clauses(upsert).Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sql commit of %d ops: %w", len(ops), err)
	}
	return nil
}

// Get loads one document; ok is false when it does not exist.
func (s *Store) Get(ctx context.Context, path docstore.Path, docID string) (map[string]any, bool, error) {
	var row Document
	err := s.db.WithContext(ctx).
		Where("collection_path = ? AND doc_id = ?", path.String(), docID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out map[string]any
	if err := json.Unmarshal(row.Payload, &out); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", path.String(), docID, err)
	}
	return out, true, nil
}

// Count is the number of documents stored under path.
func (s *Store) Count(ctx context.Context, path docstore.Path) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Document{}).Where("collection_path = ?", path.String()).Count(&n).Error
	return n, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
