package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("IMPORT_GCS_BUCKET", "book-media")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.Bucket != "book-media" {
		t.Fatalf("bucket: want=%q got=%q", "book-media", cfg.Bucket)
	}
	if cfg.ModeSource() != "explicit_or_default" {
		t.Fatalf("mode source: got=%q", cfg.ModeSource())
	}
}

func TestResolveObjectStorageConfigFromEnvCompatibilityFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")
	t.Setenv("IMPORT_GCS_BUCKET", "book-media")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if !cfg.IsEmulatorMode() || !cfg.CompatibilityFallback {
		t.Fatalf("expected emulator mode via compatibility fallback, got=%+v", cfg)
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host should be trimmed, got=%q", cfg.EmulatorHost)
	}
}

func TestResolveObjectStorageConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		emulator string
		bucket   string
		base     string
		wantCode ObjectStorageConfigErrorCode
	}{
		{name: "invalid mode", mode: "local", bucket: "b", wantCode: ObjectStorageConfigErrorInvalidMode},
		{name: "missing bucket", mode: "gcs", wantCode: ObjectStorageConfigErrorMissingBucket},
		{name: "missing emulator", mode: "gcs_emulator", bucket: "b", wantCode: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "invalid emulator", mode: "gcs_emulator", emulator: "fake-gcs:4443", bucket: "b", wantCode: ObjectStorageConfigErrorInvalidEmulatorHost},
		{name: "invalid base", mode: "gcs", bucket: "b", base: "localhost:4443", wantCode: ObjectStorageConfigErrorInvalidPublicBaseURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulator)
			t.Setenv("IMPORT_GCS_BUCKET", tc.bucket)
			t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", tc.base)

			_, err := ResolveObjectStorageConfigFromEnv()
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ObjectStorageConfigError, got=%v", err)
			}
			if cfgErr.Code != tc.wantCode {
				t.Fatalf("code: want=%q got=%q", tc.wantCode, cfgErr.Code)
			}
		})
	}
}
