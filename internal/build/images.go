package build

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ImageStore copies built images into one version's output directory.
// Images keep their file name so later stages find them at fixed paths.
type ImageStore struct {
	BaseDir string
}

// StoreImage copies the image at imagePath into the store and returns the
// destination path. An existing file of the same name is overwritten.
func (store *ImageStore) StoreImage(imagePath string) (string, error) {
	if store.BaseDir == "" {
		return "", errors.New("base directory is not configured")
	}
	if imagePath == "" {
		return "", errors.New("image path is required")
	}

	if err := os.MkdirAll(store.BaseDir, 0o755); err != nil {
		return "", err
	}

	src, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", imagePath)
	}

	destPath := filepath.Join(store.BaseDir, filepath.Base(imagePath))
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return destPath, nil
}

// StoreImages copies every image in order and returns the destination paths.
func (store *ImageStore) StoreImages(imagePaths []string) ([]string, error) {
	stored := make([]string, 0, len(imagePaths))
	for _, path := range imagePaths {
		dest, err := store.StoreImage(path)
		if err != nil {
			return nil, fmt.Errorf("copy %s to %s: %w", path, store.BaseDir, err)
		}
		stored = append(stored, dest)
	}
	return stored, nil
}
