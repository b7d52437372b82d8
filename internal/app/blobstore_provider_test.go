package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

type fakeBucket struct{}

func (fakeBucket) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", nil
}

func (fakeBucket) Close() error { return nil }

// stubOpenBucket replaces the bucket constructor and records the config it was given.
func stubOpenBucket(t *testing.T, err error) *gcp.ObjectStorageConfig {
	t.Helper()
	orig := openBucket
	t.Cleanup(func() { openBucket = orig })
	got := new(gcp.ObjectStorageConfig)
	openBucket = func(_ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.BucketService, error) {
		*got = cfg
		if err != nil {
			return nil, err
		}
		return fakeBucket{}, nil
	}
	return got
}

func TestResolveBlobStoreMapsImportConfig(t *testing.T) {
	got := stubOpenBucket(t, nil)
	cfg := Config{
		ObjectStorageMode:      " GCS_Emulator ",
		Bucket:                 " book-media ",
		CDNDomain:              "cdn.example.com",
		StorageEmulatorHost:    "http://fake-gcs:4443/",
		ObjectStoragePublicURL: "http://localhost:4443/",
	}
	bucket, err := resolveBlobStore(logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("resolveBlobStore: %v", err)
	}
	if bucket == nil {
		t.Fatalf("expected a bucket service")
	}
	want := gcp.ObjectStorageConfig{
		Mode:          gcp.ObjectStorageModeGCSEmulator,
		Bucket:        "book-media",
		CDNDomain:     "cdn.example.com",
		EmulatorHost:  "http://fake-gcs:4443",
		PublicBaseURL: "http://localhost:4443",
	}
	if *got != want {
		t.Fatalf("object storage config: want=%+v got=%+v", want, *got)
	}
}

func TestResolveBlobStoreRejectsBadConfigBeforeOpening(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		code BlobStoreBootstrapErrorCode
	}{
		{"unknown mode", Config{ObjectStorageMode: "s3", Bucket: "book-media"}, BlobStoreBootstrapErrorInvalidMode},
		{"no bucket", Config{ObjectStorageMode: "gcs"}, BlobStoreBootstrapErrorMissingBucket},
		{"relative public base", Config{ObjectStorageMode: "gcs", Bucket: "book-media", ObjectStoragePublicURL: "localhost:4443"}, BlobStoreBootstrapErrorInvalidPublicBaseURL},
		{"emulator without host", Config{ObjectStorageMode: "gcs_emulator", Bucket: "book-media"}, BlobStoreBootstrapErrorMissingEmulatorHost},
		{"emulator host without scheme", Config{ObjectStorageMode: "gcs_emulator", Bucket: "book-media", StorageEmulatorHost: "fake-gcs:4443"}, BlobStoreBootstrapErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opened := false
			orig := openBucket
			t.Cleanup(func() { openBucket = orig })
			openBucket = func(*logger.Logger, gcp.ObjectStorageConfig) (gcp.BucketService, error) {
				opened = true
				return fakeBucket{}, nil
			}

			_, err := resolveBlobStore(logger.Nop(), tc.cfg)
			var got *BlobStoreBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected BlobStoreBootstrapError, got=%T (%v)", err, err)
			}
			if got.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, got.Code)
			}
			var cfgErr *gcp.ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("config error should stay reachable: %v", err)
			}
			if opened {
				t.Fatalf("bucket should not be opened for an invalid config")
			}
		})
	}
}

func TestResolveBlobStoreConnectFailed(t *testing.T) {
	dialErr := errors.New("dialing storage.googleapis.com: no such host")
	stubOpenBucket(t, dialErr)

	_, err := resolveBlobStore(logger.Nop(), Config{ObjectStorageMode: "gcs", Bucket: "book-media"})
	var got *BlobStoreBootstrapError
	if !errors.As(err, &got) || got.Code != BlobStoreBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	if got.Bucket != "book-media" || got.Mode != "gcs" {
		t.Fatalf("error context: mode=%q bucket=%q", got.Mode, got.Bucket)
	}
	if !errors.Is(err, dialErr) {
		t.Fatalf("cause should stay reachable")
	}
}

func TestBlobStoreErrorCodeCoversEveryConfigCode(t *testing.T) {
	for _, code := range []gcp.ObjectStorageConfigErrorCode{
		gcp.ObjectStorageConfigErrorInvalidMode,
		gcp.ObjectStorageConfigErrorMissingBucket,
		gcp.ObjectStorageConfigErrorMissingEmulatorHost,
		gcp.ObjectStorageConfigErrorInvalidEmulatorHost,
		gcp.ObjectStorageConfigErrorInvalidPublicBaseURL,
	} {
		got := blobStoreErrorCode(&gcp.ObjectStorageConfigError{Code: code})
		if string(got) != string(code) {
			t.Fatalf("blobStoreErrorCode(%q): got=%q", code, got)
		}
	}
}
