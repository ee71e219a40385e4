// Package workspace frees the disk space held by extracted source trees.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Reclaimer deletes a version's source tree. It does not check whether the
// version was built; deleting after a failed build is allowed.
type Reclaimer struct {
	Logger *slog.Logger
	Layout layout.Layout
}

// Reclaim recursively removes the source tree of version. A tree that does
// not exist is an error.
func (r *Reclaimer) Reclaim(version models.Version) error {
	tree := r.Layout.SourceDir(version)
	logger := logging.ForStage(logging.Ensure(r.Logger), string(models.StageReclaim)).With("version", version.String())

	if _, err := os.Lstat(tree); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &models.MissingInputError{Path: tree, What: "build directory", Stage: models.StageExtract}
		}
		return fmt.Errorf("stat %s: %w", tree, err)
	}

	before, statErr := FreeSpace(r.Layout.BuildDir)
	logger.Info(fmt.Sprintf("Deleting %s", tree))

	if err := os.RemoveAll(tree); err != nil {
		return fmt.Errorf("delete %s: %w", tree, err)
	}

	if statErr != nil {
		logger.Debug("free space unavailable", "error", statErr)
		return nil
	}
	after, err := FreeSpace(r.Layout.BuildDir)
	if err != nil {
		logger.Debug("free space unavailable", "error", err)
		return nil
	}

	var reclaimed uint64
	if after > before {
		reclaimed = after - before
	}
	logger.Info("source tree deleted",
		"reclaimed", humanize.IBytes(reclaimed),
		"free", humanize.IBytes(after),
	)
	return nil
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
