package objectstorage

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUploadBufferWritesFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "http://localhost:8080/files", []byte("test-key"))

	result, err := s.UploadBuffer(context.Background(), []byte("hello"), "images/note1.jpg", "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "images/note1.jpg", result.Key)
	require.Equal(t, int64(5), result.Size)
	require.NotEmpty(t, result.ETag)

	body, err := os.ReadFile(filepath.Join(dir, "images", "note1.jpg"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestUploadBufferRequiresKey(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080/files", []byte("test-key"))
	_, err := s.UploadBuffer(context.Background(), []byte("hello"), "", "image/jpeg")
	require.Error(t, err)
}

func TestPresignedURLRoundTrip(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080/files", []byte("test-key"))

	signedURL, err := s.GeneratePresignedDownloadURL(context.Background(), "images/note1.jpg", time.Minute)
	require.NoError(t, err)
	require.Contains(t, signedURL, "op=download")

	expires, sig := parseSignedURL(t, signedURL)
	require.True(t, s.Verify("images/note1.jpg", "download", expires, sig))
}

func TestPresignedURLExpires(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080/files", []byte("test-key"))
	ok := s.Verify("images/note1.jpg", "download", time.Now().Add(-time.Minute).Unix(), "anything")
	require.False(t, ok)
}

func TestUploadBufferRespectsRateLimit(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080/files", []byte("test-key")).WithRateLimit(1000, 1)

	_, err := s.UploadBuffer(context.Background(), []byte("a"), "images/a.jpg", "image/jpeg")
	require.NoError(t, err)
	_, err = s.UploadBuffer(context.Background(), []byte("b"), "images/b.jpg", "image/jpeg")
	require.NoError(t, err)
}

func TestUploadBufferRateLimitCancels(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080/files", []byte("test-key")).WithRateLimit(0.001, 1)
	_, err := s.UploadBuffer(context.Background(), []byte("a"), "images/a.jpg", "image/jpeg")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.UploadBuffer(ctx, []byte("b"), "images/b.jpg", "image/jpeg")
	require.Error(t, err)
}

func parseSignedURL(t *testing.T, rawURL string) (int64, string) {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	return expires, parsed.Query().Get("sig")
}
