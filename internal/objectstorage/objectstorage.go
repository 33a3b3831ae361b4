// Package objectstorage is the default local-filesystem implementation of
// interfaces.ObjectStorage, used by process_image to land recipe
// photos under the configured images directory.
package objectstorage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/pipeline"
	"golang.org/x/time/rate"
)

// LocalStorage implements interfaces.ObjectStorage over a directory tree,
// signing presigned URLs with HMAC-SHA256 rather than delegating to a cloud
// provider.
type LocalStorage struct {
	root      string
	baseURL   string
	signerKey []byte
	limiter   *rate.Limiter // nil disables throttling
}

// New constructs a LocalStorage rooted at root, serving presigned URLs
// under baseURL (e.g. "http://localhost:8080/files") signed with key.
func New(root string, baseURL string, key []byte) *LocalStorage {
	return &LocalStorage{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), signerKey: key}
}

// WithRateLimit caps uploads to n operations/second with a burst of burst.
// A non-positive n leaves throttling disabled.
func (s *LocalStorage) WithRateLimit(n float64, burst int) *LocalStorage {
	if n > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(n), burst)
	}
	return s
}

var _ interfaces.ObjectStorage = (*LocalStorage)(nil)

func (s *LocalStorage) UploadFile(ctx context.Context, path string, key string, contentType string) (*interfaces.UploadResult, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, pipeline.RepositoryFailure("objectstorage.UploadFile", err)
	}
	defer src.Close()

	body, err := io.ReadAll(src)
	if err != nil {
		return nil, pipeline.RepositoryFailure("objectstorage.UploadFile", err)
	}
	return s.UploadBuffer(ctx, body, key, contentType)
}

func (s *LocalStorage) UploadBuffer(ctx context.Context, buf []byte, key string, contentType string) (*interfaces.UploadResult, error) {
	if key == "" {
		return nil, pipeline.InvalidInput("objectstorage.UploadBuffer", fmt.Errorf("key is required"))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, pipeline.Timeout("objectstorage.UploadBuffer", err)
		}
	}

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, pipeline.RepositoryFailure("objectstorage.UploadBuffer", err)
	}
	if err := os.WriteFile(dest, buf, 0o644); err != nil {
		return nil, pipeline.RepositoryFailure("objectstorage.UploadBuffer", err)
	}

	sum := sha256.Sum256(buf)
	return &interfaces.UploadResult{
		Key:  key,
		URL:  s.baseURL + "/" + key,
		Size: int64(len(buf)),
		ETag: hex.EncodeToString(sum[:]),
	}, nil
}

func (s *LocalStorage) GeneratePresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error) {
	return s.sign(key, "upload", expiresIn)
}

func (s *LocalStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	return s.sign(key, "download", expiresIn)
}

func (s *LocalStorage) sign(key string, op string, expiresIn time.Duration) (string, error) {
	if key == "" {
		return "", pipeline.InvalidInput("objectstorage.sign", fmt.Errorf("key is required"))
	}

	expiry := time.Now().Add(expiresIn).Unix()
	payload := op + ":" + key + ":" + strconv.FormatInt(expiry, 10)

	mac := hmac.New(sha256.New, s.signerKey)
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s/%s?op=%s&expires=%d&sig=%s", s.baseURL, key, op, expiry, sig), nil
}

// Verify reports whether a presigned URL's signature and expiry are still
// valid, for the HTTP handler that eventually serves these URLs.
func (s *LocalStorage) Verify(key, op string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	payload := op + ":" + key + ":" + strconv.FormatInt(expires, 10)
	mac := hmac.New(sha256.New, s.signerKey)
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
