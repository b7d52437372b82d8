package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/docstore/firestorestore"
	"github.com/yungbote/bookimport/internal/docstore/memstore"
	"github.com/yungbote/bookimport/internal/docstore/mongostore"
	"github.com/yungbote/bookimport/internal/docstore/sqlstore"
	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

const docStorePingTimeout = 15 * time.Second

var (
	openFirestore = func(ctx context.Context, log *logger.Logger, projectID string) (docstore.Store, error) {
		return firestorestore.New(ctx, log, projectID, gcp.ClientOptionsFromEnv()...)
	}
	openPostgres = func(log *logger.Logger, dsn string) (docstore.Store, error) {
		return sqlstore.OpenPostgres(log, dsn)
	}
	openSQLite = func(log *logger.Logger, path string) (docstore.Store, error) {
		return sqlstore.OpenSQLite(log, path)
	}
	openMongo = func(ctx context.Context, log *logger.Logger, uri, database string) (docstore.Store, error) {
		return mongostore.New(ctx, log, uri, database)
	}
)

type DocStoreBootstrapErrorCode string

const (
	DocStoreBootstrapErrorInvalidMode   DocStoreBootstrapErrorCode = "invalid_mode"
	DocStoreBootstrapErrorMissingTarget DocStoreBootstrapErrorCode = "missing_target"
	DocStoreBootstrapErrorConnectFailed DocStoreBootstrapErrorCode = "connect_failed"
)

type DocStoreBootstrapError struct {
	Code  DocStoreBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *DocStoreBootstrapError) Error() string {
	if e == nil {
		return "document store bootstrap failed"
	}
	return fmt.Sprintf("document store bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *DocStoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func resolveDocStore(ctx context.Context, log *logger.Logger, cfg Config) (docstore.Store, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DocStoreMode))
	fail := func(code DocStoreBootstrapErrorCode, cause error) error {
		err := &DocStoreBootstrapError{Code: code, Mode: mode, Cause: cause}
		log.Error("Document store bootstrap failed", "mode", mode, "error_code", code, "error", cause)
		return err
	}
	log.Info("Selecting document store", "mode", mode)

	var (
		store docstore.Store
		err   error
	)
	switch mode {
	case DocStoreMemory:
		log.Warn("Using in-memory document store; nothing will persist after exit")
		return memstore.New(), nil
	case DocStoreFirestore:
		store, err = openFirestore(ctx, log, cfg.FirestoreProjectID)
	case DocStorePostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fail(DocStoreBootstrapErrorMissingTarget, errors.New("POSTGRES_DSN is required"))
		}
		store, err = openPostgres(log, cfg.PostgresDSN)
	case DocStoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fail(DocStoreBootstrapErrorMissingTarget, errors.New("SQLITE_PATH is required"))
		}
		store, err = openSQLite(log, cfg.SQLitePath)
	case DocStoreMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return nil, fail(DocStoreBootstrapErrorMissingTarget, errors.New("MONGO_URI is required"))
		}
		store, err = openMongo(ctx, log, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fail(DocStoreBootstrapErrorInvalidMode, fmt.Errorf("unsupported document store mode %q", mode))
	}
	if err != nil {
		return nil, fail(DocStoreBootstrapErrorConnectFailed, err)
	}
	if err := pingDocStore(ctx, store); err != nil {
		_ = store.Close()
		return nil, fail(DocStoreBootstrapErrorConnectFailed, err)
	}
	return store, nil
}

func pingDocStore(ctx context.Context, store docstore.Store) error {
	p, ok := store.(docstore.Pinger)
	if !ok {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, docStorePingTimeout)
	defer cancel()
	return p.Ping(pctx)
}
