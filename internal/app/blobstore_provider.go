package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/bookimport/internal/platform/gcp"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

var openBucket = gcp.NewBucketServiceWithConfig

type BlobStoreBootstrapErrorCode string

const (
	BlobStoreBootstrapErrorInvalidMode          BlobStoreBootstrapErrorCode = "invalid_mode"
	BlobStoreBootstrapErrorMissingBucket        BlobStoreBootstrapErrorCode = "missing_bucket"
	BlobStoreBootstrapErrorMissingEmulatorHost  BlobStoreBootstrapErrorCode = "missing_emulator_host"
	BlobStoreBootstrapErrorInvalidEmulatorHost  BlobStoreBootstrapErrorCode = "invalid_emulator_host"
	BlobStoreBootstrapErrorInvalidPublicBaseURL BlobStoreBootstrapErrorCode = "invalid_public_base_url"
	BlobStoreBootstrapErrorConnectFailed        BlobStoreBootstrapErrorCode = "connect_failed"
)

var blobStoreConfigCodes = map[gcp.ObjectStorageConfigErrorCode]BlobStoreBootstrapErrorCode{
	gcp.ObjectStorageConfigErrorInvalidMode:          BlobStoreBootstrapErrorInvalidMode,
	gcp.ObjectStorageConfigErrorMissingBucket:        BlobStoreBootstrapErrorMissingBucket,
	gcp.ObjectStorageConfigErrorMissingEmulatorHost:  BlobStoreBootstrapErrorMissingEmulatorHost,
	gcp.ObjectStorageConfigErrorInvalidEmulatorHost:  BlobStoreBootstrapErrorInvalidEmulatorHost,
	gcp.ObjectStorageConfigErrorInvalidPublicBaseURL: BlobStoreBootstrapErrorInvalidPublicBaseURL,
}

type BlobStoreBootstrapError struct {
	Code   BlobStoreBootstrapErrorCode
	Mode   string
	Bucket string
	Cause  error
}

func (e *BlobStoreBootstrapError) Error() string {
	if e == nil {
		return "blob store bootstrap failed"
	}
	return fmt.Sprintf("blob store bootstrap failed (code=%s mode=%q bucket=%q): %v", e.Code, e.Mode, e.Bucket, e.Cause)
}

func (e *BlobStoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// objectStorageConfig maps the import config onto the bucket service's config.
func objectStorageConfig(cfg Config) gcp.ObjectStorageConfig {
	return gcp.ObjectStorageConfig{
		Mode:                  gcp.ObjectStorageMode(strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))),
		Bucket:                strings.TrimSpace(cfg.Bucket),
		CDNDomain:             strings.TrimSpace(cfg.CDNDomain),
		EmulatorHost:          strings.TrimRight(strings.TrimSpace(cfg.StorageEmulatorHost), "/"),
		PublicBaseURL:         strings.TrimRight(strings.TrimSpace(cfg.ObjectStoragePublicURL), "/"),
		CompatibilityFallback: cfg.StorageModeCompatFallback,
	}
}

// blobStoreErrorCode maps a config error from the gcp package onto a bootstrap code.
// Anything else happened while creating the client.
func blobStoreErrorCode(err error) BlobStoreBootstrapErrorCode {
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		if code, ok := blobStoreConfigCodes[cfgErr.Code]; ok {
			return code
		}
	}
	return BlobStoreBootstrapErrorConnectFailed
}

// resolveBlobStore opens the bucket media and content JSON are uploaded to. The config is
// validated before any client is created so a bad setting never reaches the network.
func resolveBlobStore(log *logger.Logger, cfg Config) (gcp.BucketService, error) {
	storageCfg := objectStorageConfig(cfg)
	fail := func(err error) error {
		bErr := &BlobStoreBootstrapError{
			Code:   blobStoreErrorCode(err),
			Mode:   string(storageCfg.Mode),
			Bucket: storageCfg.Bucket,
			Cause:  err,
		}
		log.Error("Blob store bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", storageCfg.ModeSource(),
			"bucket", storageCfg.Bucket,
			"error_code", bErr.Code,
			"error", err,
		)
		return bErr
	}

	if err := gcp.ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fail(err)
	}
	log.Info("Selecting blob store",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"bucket", storageCfg.Bucket,
		"cdn_domain", storageCfg.CDNDomain,
	)
	bucket, err := openBucket(log, storageCfg)
	if err != nil {
		return nil, fail(err)
	}
	return bucket, nil
}
