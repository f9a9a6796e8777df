// Package source resolves image locators (URLs, local paths, file-service
// references) to image bytes for extraction.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/snapknow/internal/retry"
)

// fetchTimeout caps one HTTP fetch end to end, so a stalled remote host
// cannot pin a pipeline worker.
const fetchTimeout = 30 * time.Second

// imageExtensions maps accepted file extensions to their MIME types.
var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Image is a resolved image ready for extraction.
type Image struct {
	Data     []byte
	MimeType string

	// Locator is the identity used for deduplication: the URL for remote
	// images, the file-service reference for uploads, the path for local
	// files.
	Locator string
}

// Resolver turns locators into image bytes. Remote fetches are bounded by
// maxBytes and validated by content type.
type Resolver struct {
	client         *http.Client
	fileServiceURL string
	maxBytes       int64
	logger         *slog.Logger
}

// NewResolver creates a resolver. fileServiceURL may be empty when uploads
// are not used; maxBytes <= 0 disables the size bound.
func NewResolver(fileServiceURL string, maxBytes int64, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:         &http.Client{Timeout: fetchTimeout},
		fileServiceURL: strings.TrimSuffix(fileServiceURL, "/"),
		maxBytes:       maxBytes,
		logger:         logger,
	}
}

// Resolve fetches the image behind a locator. HTTP(S) URLs are downloaded,
// existing local paths are read, anything else is treated as a file-service
// reference.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Image, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return r.download(ctx, locator, locator)
	case fileExists(locator):
		return r.FromFile(locator)
	default:
		return r.fromFileService(ctx, locator)
	}
}

// FromFile reads a local image file.
func (r *Resolver) FromFile(path string) (*Image, error) {
	mime, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("unsupported image extension: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("read image file: %w", err))
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("image %s exceeds %d bytes", path, r.maxBytes))
	}

	return &Image{Data: data, MimeType: mime, Locator: path}, nil
}

// FromFolder enumerates the image files directly inside a folder, sorted by
// name. Subdirectories are not descended into.
func (r *Resolver) FromFolder(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			paths = append(paths, filepath.Join(folder, entry.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", folder)
	}
	return paths, nil
}

// FromServiceFolder lists the image references inside a file-service folder.
// Each returned reference resolves individually through Resolve.
func (r *Resolver) FromServiceFolder(ctx context.Context, ref string) ([]string, error) {
	if r.fileServiceURL == "" {
		return nil, fmt.Errorf("no file service configured, cannot list folder %q", ref)
	}

	listURL := fmt.Sprintf("%s/folders/%s", r.fileServiceURL, url.PathEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build folder request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list folder: API error (status %d)", resp.StatusCode)
	}

	var listing struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode folder listing: %w", err)
	}

	var refs []string
	for _, f := range listing.Files {
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(f))]; ok {
			refs = append(refs, f)
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no image files in folder %q", ref)
	}

	r.logger.Debug("service folder listed", "folder", ref, "images", len(refs))
	return refs, nil
}

// fromFileService fetches an uploaded image by reference from the configured
// external file service.
func (r *Resolver) fromFileService(ctx context.Context, ref string) (*Image, error) {
	if r.fileServiceURL == "" {
		return nil, retry.Permanent(fmt.Errorf("no file service configured, cannot resolve %q", ref))
	}
	fetchURL := fmt.Sprintf("%s/files/%s", r.fileServiceURL, url.PathEscape(ref))
	return r.download(ctx, fetchURL, ref)
}

// download fetches an image over HTTP and validates its type and size.
// locator is the identity recorded on the returned Image; it differs from
// fetchURL for file-service references.
func (r *Resolver) download(ctx context.Context, fetchURL, locator string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch image: API error (status %d)", resp.StatusCode)
		// Client errors other than 429 will not change on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	mime := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, retry.Permanent(fmt.Errorf("unexpected content type %q for %s", mime, fetchURL))
	}

	reader := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("image at %s exceeds %d bytes", fetchURL, r.maxBytes))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body from %s", fetchURL)
	}

	r.logger.Debug("image resolved", "locator", locator, "bytes", len(data), "mime", mime)
	return &Image{Data: data, MimeType: mime, Locator: locator}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
