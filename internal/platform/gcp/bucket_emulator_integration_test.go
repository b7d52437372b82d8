package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/bookimport/internal/platform/logger"
)

func TestBucketServiceEmulatorUpload(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("IMPORT_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set IMPORT_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}
	emulatorHost := strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")
	if emulatorHost == "" {
		emulatorHost = "http://127.0.0.1:4443"
	}
	if !isEmulatorReachable(emulatorHost) {
		t.Skipf("storage emulator not reachable at %s", emulatorHost)
	}

	bucketName := fmt.Sprintf("import-it-%d", time.Now().UnixNano())
	createBucketIfMissing(t, emulatorHost, bucketName)

	bucket, err := NewBucketServiceWithConfig(logger.Nop(), ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		Bucket:       bucketName,
		EmulatorHost: emulatorHost,
	})
	if err != nil {
		t.Fatalf("NewBucketServiceWithConfig: %v", err)
	}
	defer bucket.Close()

	ctx := context.Background()
	key := "images/c1/s1/fig.png"
	addr, err := bucket.Upload(ctx, key, strings.NewReader("png-bytes"), "")
	if err != nil {
		t.Fatalf("Upload(%s): %v", key, err)
	}
	if !strings.HasPrefix(addr, emulatorHost+"/storage/v1/b/"+bucketName+"/o/") {
		t.Fatalf("public address: got=%q", addr)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Get(addr)
	if err != nil {
		t.Fatalf("GET %s: %v", addr, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("object at public address: status=%d body=%q", resp.StatusCode, body)
	}
}

func isEmulatorReachable(emulatorHost string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(emulatorHost + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucketIfMissing(t *testing.T, emulatorHost string, bucket string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": bucket})
	if err != nil {
		t.Fatalf("json.Marshal(bucket): %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(emulatorHost+"/storage/v1/b?project=local-dev", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
}
