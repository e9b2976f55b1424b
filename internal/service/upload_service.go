package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

var allowedImageTypes = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {},
}

// UploadStore keeps post images somewhere the platforms can fetch them.
type UploadStore interface {
	// Save stores data under a fresh name and returns its public URL.
	Save(ctx context.Context, data []byte) (string, error)
	URLFor(filename string) string
	// Delete reports whether a file was removed. It never fails loudly.
	Delete(ctx context.Context, filename string) bool
	// Owns maps a public URL back to a filename held by this store.
	Owns(url string) (string, bool)
}

// sniffImage checks data is an allowed image and returns its extension and MIME type.
func sniffImage(data []byte) (string, string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return "", "", ErrUnsupportedFile
	}
	if _, ok := allowedImageTypes[kind.Extension]; !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFile, kind.Extension)
	}
	return kind.Extension, kind.MIME.Value, nil
}

func newFilename(ext string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return id + "." + ext, nil
}

type localUploadStore struct {
	dir     string
	baseURL string
}

// NewLocalUploadStore serves files from dir under baseURL/uploads.
func NewLocalUploadStore(dir, baseURL string) (UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localUploadStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *localUploadStore) Save(ctx context.Context, data []byte) (string, error) {
	ext, _, err := sniffImage(data)
	if err != nil {
		return "", err
	}

	name, err := newFilename(ext)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return s.URLFor(name), nil
}

func (s *localUploadStore) URLFor(filename string) string {
	return fmt.Sprintf("%s/uploads/%s", s.baseURL, filename)
}

func (s *localUploadStore) Delete(ctx context.Context, filename string) bool {
	if filename == "" || filename != filepath.Base(filename) {
		return false
	}

	err := os.Remove(filepath.Join(s.dir, filename))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "failed to delete upload", "file", filename, "err", err)
		}
		return false
	}
	slog.InfoContext(ctx, "deleted upload", "file", filename)
	return true
}

func (s *localUploadStore) Owns(url string) (string, bool) {
	return ownedFilename(url, s.baseURL+"/uploads/")
}

func ownedFilename(url, prefix string) (string, bool) {
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
