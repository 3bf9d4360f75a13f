package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/internal/tracefile"
)

// ObjectStore mirrors measurement artifacts to object storage
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	DownloadURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ContentType returns the content type stored for an artifact extension
func ContentType(ext string) string {
	switch ext {
	case tracefile.TextExt, fit.DefaultExtension:
		return "text/tab-separated-values"
	}
	return "application/octet-stream"
}

// ArtifactKey maps a saved artifact below basePath to its object key
func ArtifactKey(basePath, path string) (string, error) {
	rel, err := tracefile.Rel(basePath, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// MirrorArtifacts uploads the blob and text artifact of the trace saved at
// path (no extension), plus its fit-result file when present. It returns
// the uploaded keys.
func MirrorArtifacts(ctx context.Context, store ObjectStore, basePath, path, fitExt string) ([]string, error) {
	if fitExt == "" {
		fitExt = fit.DefaultExtension
	}
	base, err := ArtifactKey(basePath, path)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, ext := range []string{tracefile.BlobExt, tracefile.TextExt, fitExt} {
		key, err := uploadFile(ctx, store, path+ext, base+ext, ext)
		if errors.Is(err, fs.ErrNotExist) && ext == fitExt {
			continue
		}
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	log.Info().Strs("keys", keys).Msg("Artifacts mirrored")
	return keys, nil
}

func uploadFile(ctx context.Context, store ObjectStore, file, key, ext string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if err := store.Upload(ctx, key, f, info.Size(), ContentType(ext)); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}
