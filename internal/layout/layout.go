// Package layout computes where every artifact of a version lives on disk and
// on the source mirror. All functions are pure; stages never assemble paths
// themselves.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cochaviz/kernelsize/arch"
	"github.com/cochaviz/kernelsize/internal/models"
)

// ELFImage is the uncompressed kernel image kbuild leaves at the tree root.
const ELFImage = "vmlinux"

// ArchiveFormat selects the compression of source archives.
type ArchiveFormat string

// Supported archive formats.
const (
	FormatXZ   ArchiveFormat = "xz"
	FormatGzip ArchiveFormat = "gz"
	FormatZstd ArchiveFormat = "zst"
)

// ParseArchiveFormat validates a format name. An empty name selects xz.
func ParseArchiveFormat(value string) (ArchiveFormat, error) {
	switch ArchiveFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatXZ, "tar.xz":
		return FormatXZ, nil
	case FormatGzip, "gzip", "tar.gz":
		return FormatGzip, nil
	case FormatZstd, "zstd", "tar.zst":
		return FormatZstd, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q (supported: xz, gz, zst)", value)
	}
}

// Extension returns the archive suffix including the tar component.
func (f ArchiveFormat) Extension() string {
	if f == "" {
		return ".tar." + string(FormatXZ)
	}
	return ".tar." + string(f)
}

// MirrorDir maps a version to its subdirectory on the kernel.org mirror. The
// 2.x series is split per minor release ("v2.6"); later series share one
// directory per major ("v3.x"). Malformed versions are not rejected.
func MirrorDir(version models.Version) string {
	major := version.Major()
	if parts := version.Components(); major == "2" && len(parts) > 1 {
		return "v2." + parts[1]
	}
	return "v" + major + ".x"
}

// Layout holds the root directories and build parameters that, together with
// a version, determine every path used by the pipeline.
type Layout struct {
	DownloadDir string
	BuildDir    string
	BinDir      string
	Arch        arch.Architecture
	Format      ArchiveFormat

	// CompressedImage overrides the architecture's default boot image name.
	CompressedImage string
}

// ArchiveBase is the top-level directory name inside the archive.
func (l Layout) ArchiveBase(version models.Version) string {
	return "linux-" + version.String()
}

// ArchiveName is the file name of the source archive.
func (l Layout) ArchiveName(version models.Version) string {
	return l.ArchiveBase(version) + l.Format.Extension()
}

// ArchivePath is where the fetched archive is stored.
func (l Layout) ArchivePath(version models.Version) string {
	return filepath.Join(l.DownloadDir, l.ArchiveName(version))
}

// ArchiveURL is the archive location on the mirror rooted at mirror.
func (l Layout) ArchiveURL(mirror string, version models.Version) string {
	return l.MirrorURL(mirror, version) + "/" + l.ArchiveName(version)
}

// MirrorURL is the mirror directory holding the version's archive.
func (l Layout) MirrorURL(mirror string, version models.Version) string {
	return strings.TrimRight(mirror, "/") + "/" + MirrorDir(version)
}

// SourceDir is the extracted source tree.
func (l Layout) SourceDir(version models.Version) string {
	return filepath.Join(l.BuildDir, l.ArchiveBase(version))
}

// ArchBinDir is the per-architecture root of all output directories.
func (l Layout) ArchBinDir() string {
	return filepath.Join(l.BinDir, l.Arch.String())
}

// OutputDir receives the images built for the version.
func (l Layout) OutputDir(version models.Version) string {
	return filepath.Join(l.ArchBinDir(), l.ArchiveBase(version))
}

// CompressedImageName is the boot image file name for the layout's
// architecture.
func (l Layout) CompressedImageName() string {
	if l.CompressedImage != "" {
		return l.CompressedImage
	}
	return l.Arch.CompressedImage()
}

// ELFImagePath is the copied uncompressed image of the version.
func (l Layout) ELFImagePath(version models.Version) string {
	return filepath.Join(l.OutputDir(version), ELFImage)
}

// CompressedImagePath is the copied compressed boot image of the version.
func (l Layout) CompressedImagePath(version models.Version) string {
	return filepath.Join(l.OutputDir(version), l.CompressedImageName())
}

// BuiltELFImage is where kbuild writes the uncompressed image in the tree.
func (l Layout) BuiltELFImage(version models.Version) string {
	return filepath.Join(l.SourceDir(version), ELFImage)
}

// BootImagePattern is the glob matching compressed images in the tree.
func (l Layout) BootImagePattern(version models.Version) string {
	return filepath.Join(l.SourceDir(version), filepath.FromSlash(l.Arch.BootDir()), "*Image")
}
