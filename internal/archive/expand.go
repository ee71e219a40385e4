// Package archive expands fetched source archives into the build directory.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Expander extracts a version's archive under the layout's build directory.
// Existing files are overwritten; nothing is removed first.
type Expander struct {
	Logger *slog.Logger
	Layout layout.Layout
}

// Expand extracts the archive for version. A missing archive is reported
// before anything is created on disk.
func (e *Expander) Expand(ctx context.Context, version models.Version) error {
	archivePath := e.Layout.ArchivePath(version)
	logger := logging.ForStage(e.Logger, string(models.StageExtract)).With("version", version.String())

	info, err := os.Stat(archivePath)
	if err != nil || !info.Mode().IsRegular() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return &models.MissingInputError{Path: archivePath, What: "source archive", Stage: models.StageFetch}
		}
		return fmt.Errorf("stat %s: %w", archivePath, err)
	}

	if err := os.MkdirAll(e.Layout.BuildDir, 0o755); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}

	logger.Info("extracting source archive", "archive", archivePath, "build_dir", e.Layout.BuildDir)

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer file.Close()

	stream, err := decompress(e.Layout.Format, bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer stream.Close()

	count, err := extractTar(ctx, tar.NewReader(stream), e.Layout.BuildDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}

	logger.Info("source archive extracted", "entries", count, "source_dir", e.Layout.SourceDir(version))
	return nil
}

func decompress(format layout.ArchiveFormat, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case layout.FormatXZ, "":
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
		return io.NopCloser(xzr), nil
	case layout.FormatGzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gzr, nil
	case layout.FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

func extractTar(ctx context.Context, tr *tar.Reader, dest string) (int, error) {
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read tar: %w", err)
		}

		target, err := entryPath(dest, hdr.Name)
		if err != nil {
			return count, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return count, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr); err != nil {
				return count, err
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, target, hdr.Linkname); err != nil {
				return count, err
			}
			if err := replaceWith(target, func() error { return os.Symlink(hdr.Linkname, target) }); err != nil {
				return count, fmt.Errorf("create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			source, err := entryPath(dest, hdr.Linkname)
			if err != nil {
				return count, err
			}
			if err := replaceWith(target, func() error { return os.Link(source, target) }); err != nil {
				return count, fmt.Errorf("create hard link %s: %w", target, err)
			}
		default:
			// pax global headers and device nodes carry nothing a build needs.
			continue
		}
		count++
	}
}

// entryPath resolves an entry name under dest. The name must stay inside
// dest, and no directory between dest and the entry may be a symlink, so
// writes never follow a link laid down by an earlier entry.
func entryPath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("archive entry %q escapes %s", name, dest)
	}

	rel, _ := filepath.Rel(dest, filepath.Dir(target))
	if rel == "." {
		return target, nil
	}
	current := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", current, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("archive entry %q passes through symlink %s", name, current)
		}
	}
	return target, nil
}

// checkLink rejects absolute symlinks and relative ones pointing outside dest.
func checkLink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %s -> %s is absolute", target, linkname)
	}
	if !within(dest, filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))) {
		return fmt.Errorf("symlink %s -> %s escapes %s", target, linkname, dest)
	}
	return nil
}

func within(dest, path string) bool {
	rel, err := filepath.Rel(dest, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeFile(target string, r io.Reader, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir of %s: %w", target, err)
	}

	// A previous extraction may have left a symlink here.
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace symlink %s: %w", target, err)
		}
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	if !hdr.ModTime.IsZero() {
		if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
			return fmt.Errorf("set times on %s: %w", target, err)
		}
	}
	return nil
}

func replaceWith(target string, create func() error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return create()
}

func dirMode(hdr *tar.Header) os.FileMode {
	if perm := hdr.FileInfo().Mode().Perm(); perm != 0 {
		return perm | 0o700
	}
	return 0o755
}
