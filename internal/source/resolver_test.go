package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/snapknow/internal/retry"
)

var tinyPNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestResolveDownloadsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(tinyPNG)
	}))
	defer srv.Close()

	r := NewResolver("", 0, nil)
	img, err := r.Resolve(context.Background(), srv.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, tinyPNG, img.Data)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, srv.URL+"/photo.png", img.Locator)
}

func TestResolveRejectsNonImageContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	r := NewResolver("", 0, nil)
	_, err := r.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err), "wrong content type will not fix itself on retry")
}

func TestResolveEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	r := NewResolver("", 1024, nil)
	_, err := r.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err))
}

func TestResolveStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   retry.Class
	}{
		{"not found is permanent", http.StatusNotFound, retry.Fatal},
		{"forbidden is permanent", http.StatusForbidden, retry.Fatal},
		{"too many requests is retryable", http.StatusTooManyRequests, retry.Retryable},
		{"server error is retryable", http.StatusServiceUnavailable, retry.Retryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			r := NewResolver("", 0, nil)
			_, err := r.Resolve(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.want, retry.DefaultClassifier(err))
		})
	}
}

func TestResolveFileServiceReference(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write(tinyPNG)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, 0, nil)
	img, err := r.Resolve(context.Background(), "upload-abc123")
	require.NoError(t, err)
	assert.Equal(t, "/files/upload-abc123", gotPath)
	assert.Equal(t, "upload-abc123", img.Locator, "dedup identity is the reference, not the fetch URL")
}

func TestResolveFileServiceUnconfigured(t *testing.T) {
	r := NewResolver("", 0, nil)
	_, err := r.Resolve(context.Background(), "upload-abc123")
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err))
}

func TestFromFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), tinyPNG, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	r := NewResolver("", 0, nil)
	paths, err := r.FromFolder(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3, "non-images and directories are skipped")
	assert.Equal(t, filepath.Join(dir, "a.jpg"), paths[0], "sorted by name")

	empty := t.TempDir()
	_, err = r.FromFolder(empty)
	assert.Error(t, err)
}

func TestFromServiceFolder(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files": ["scan-1.jpg", "readme.txt", "scan-2.png"]}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, 0, nil)
	refs, err := r.FromServiceFolder(context.Background(), "drive-folder")
	require.NoError(t, err)
	assert.Equal(t, "/folders/drive-folder", gotPath)
	assert.Equal(t, []string{"scan-1.jpg", "scan-2.png"}, refs, "non-images are skipped")
}

func TestFromServiceFolderErrors(t *testing.T) {
	r := NewResolver("", 0, nil)
	_, err := r.FromServiceFolder(context.Background(), "drive-folder")
	require.Error(t, err, "no file service configured")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files": ["notes.txt"]}`))
	}))
	defer srv.Close()

	r = NewResolver(srv.URL, 0, nil)
	_, err = r.FromServiceFolder(context.Background(), "empty-folder")
	assert.Error(t, err, "a folder without images is an error")
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.jpeg")
	require.NoError(t, os.WriteFile(path, tinyPNG, 0644))

	r := NewResolver("", 0, nil)
	img, err := r.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, path, img.Locator)

	_, err = r.FromFile(filepath.Join(dir, "doc.pdf"))
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.DefaultClassifier(err))
}
