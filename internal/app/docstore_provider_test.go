package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yungbote/bookimport/internal/docstore"
	"github.com/yungbote/bookimport/internal/docstore/memstore"
	"github.com/yungbote/bookimport/internal/docstore/sqlstore"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

func TestResolveDocStoreMemory(t *testing.T) {
	store, err := resolveDocStore(context.Background(), logger.Nop(), Config{DocStoreMode: "MEMORY"})
	if err != nil {
		t.Fatalf("resolveDocStore: %v", err)
	}
	if _, ok := store.(*memstore.Store); !ok {
		t.Fatalf("store: want *memstore.Store got %T", store)
	}
}

func TestResolveDocStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.db")
	store, err := resolveDocStore(context.Background(), logger.Nop(), Config{DocStoreMode: DocStoreSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("resolveDocStore: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*sqlstore.Store); !ok {
		t.Fatalf("store: want *sqlstore.Store got %T", store)
	}
}

func TestResolveDocStoreErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		code DocStoreBootstrapErrorCode
	}{
		{"unknown mode", Config{DocStoreMode: "dynamo"}, DocStoreBootstrapErrorInvalidMode},
		{"postgres without dsn", Config{DocStoreMode: DocStorePostgres}, DocStoreBootstrapErrorMissingTarget},
		{"mongo without uri", Config{DocStoreMode: DocStoreMongo}, DocStoreBootstrapErrorMissingTarget},
		{"sqlite without path", Config{DocStoreMode: DocStoreSQLite}, DocStoreBootstrapErrorMissingTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveDocStore(context.Background(), logger.Nop(), tc.cfg)
			var got *DocStoreBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected DocStoreBootstrapError, got=%T (%v)", err, err)
			}
			if got.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, got.Code)
			}
		})
	}
}

func TestResolveDocStoreConnectFailed(t *testing.T) {
	orig := openMongo
	t.Cleanup(func() { openMongo = orig })
	dialErr := errors.New("server selection timeout")
	var gotURI, gotDB string
	openMongo = func(_ context.Context, _ *logger.Logger, uri, database string) (docstore.Store, error) {
		gotURI, gotDB = uri, database
		return nil, dialErr
	}

	_, err := resolveDocStore(context.Background(), logger.Nop(), Config{
		DocStoreMode:  DocStoreMongo,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "books",
	})
	var got *DocStoreBootstrapError
	if !errors.As(err, &got) || got.Code != DocStoreBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	if !errors.Is(err, dialErr) {
		t.Fatalf("cause should stay reachable")
	}
	if gotURI != "mongodb://localhost:27017" || gotDB != "books" {
		t.Fatalf("args: uri=%q db=%q", gotURI, gotDB)
	}
}

func TestResolveDocStoreFirestoreUsesProject(t *testing.T) {
	orig := openFirestore
	t.Cleanup(func() { openFirestore = orig })
	var project string
	openFirestore = func(_ context.Context, _ *logger.Logger, projectID string) (docstore.Store, error) {
		project = projectID
		return memstore.New(), nil
	}
	if _, err := resolveDocStore(context.Background(), logger.Nop(), Config{DocStoreMode: DocStoreFirestore, FirestoreProjectID: "books-prod"}); err != nil {
		t.Fatalf("resolveDocStore: %v", err)
	}
	if project != "books-prod" {
		t.Fatalf("project: want=%q got=%q", "books-prod", project)
	}
}

func TestResolveDocStoreUnreachableFirestore(t *testing.T) {
	orig := openFirestore
	t.Cleanup(func() { openFirestore = orig })
	unreachable := errors.New("dial tcp 127.0.0.1:8080: connection refused")
	var store *memstore.Store
	openFirestore = func(context.Context, *logger.Logger, string) (docstore.Store, error) {
		store = memstore.New(memstore.WithPingError(unreachable))
		return store, nil
	}

	_, err := resolveDocStore(context.Background(), logger.Nop(), Config{DocStoreMode: DocStoreFirestore, FirestoreProjectID: "books-prod"})
	var got *DocStoreBootstrapError
	if !errors.As(err, &got) || got.Code != DocStoreBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	if !errors.Is(err, unreachable) {
		t.Fatalf("ping error should stay reachable")
	}
	if perr := store.Ping(context.Background()); perr == nil || errors.Is(perr, unreachable) {
		t.Fatalf("store should be closed after a failed ping, got %v", perr)
	}
}
