// Package fetch downloads kernel source archives from a mirror.
package fetch

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// ChunkSize is the transfer unit between progress updates.
const ChunkSize = 32 * 1024

// ChecksumFile is the signed checksum list kernel.org keeps in each mirror
// directory.
const ChecksumFile = "sha256sums.asc"

// Fetcher downloads one version's archive into the layout's download
// directory. An existing archive is overwritten.
type Fetcher struct {
	Logger *slog.Logger
	Client *http.Client
	Layout layout.Layout
	Mirror string

	// Progress receives the refreshing progress line. Nil disables it.
	Progress io.Writer

	// VerifyChecksum compares the download against the mirror's checksum
	// list before accepting it.
	VerifyChecksum bool
}

// Fetch downloads the archive for version into a ".part" file that is renamed
// into place only after a complete, verified transfer. On failure the partial
// file is removed and an archive from an earlier fetch is left untouched.
func (f *Fetcher) Fetch(ctx context.Context, version models.Version) (err error) {
	url := f.Layout.ArchiveURL(f.Mirror, version)
	target := f.Layout.ArchivePath(version)
	logger := logging.ForStage(f.Logger, string(models.StageFetch)).With("version", version.String(), "url", url)

	if err := os.MkdirAll(f.Layout.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	partial := target + ".part"
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.Remove(partial); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove partial download: %w", rmErr))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &models.TransferError{URL: url, Err: err}
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return &models.TransferError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.TransferError{URL: url, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	file, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	hasher := sha256.New()
	pw := &progressWriter{
		writer: io.MultiWriter(file, hasher),
		out:    f.Progress,
		prefix: fmt.Sprintf("Fetch %s to %s: ", url, f.Layout.DownloadDir),
		total:  resp.ContentLength,
	}

	written, copyErr := io.CopyBuffer(pw, resp.Body, make([]byte, ChunkSize))
	pw.finish()
	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return &models.TransferError{URL: url, Err: copyErr}
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return &models.TransferError{URL: url, Message: fmt.Sprintf("short transfer: %d of %d bytes", written, resp.ContentLength)}
	}

	if f.VerifyChecksum {
		if err := f.verify(ctx, version, hasher); err != nil {
			return err
		}
		logger.Info("checksum verified")
	}

	if err := os.Rename(partial, target); err != nil {
		return fmt.Errorf("move %s into place: %w", filepath.Base(target), err)
	}

	logger.Info("fetched source archive", "path", target, "size", humanize.IBytes(uint64(written)))
	return nil
}

func (f *Fetcher) verify(ctx context.Context, version models.Version, hasher hash.Hash) error {
	sumsURL := f.Layout.MirrorURL(f.Mirror, version) + "/" + ChecksumFile
	want, err := f.lookupChecksum(ctx, sumsURL, f.Layout.ArchiveName(version))
	if err != nil {
		return err
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(got, want) {
		return &models.TransferError{
			URL:     f.Layout.ArchiveURL(f.Mirror, version),
			Message: fmt.Sprintf("checksum mismatch: got %s, %s lists %s", got, ChecksumFile, want),
		}
	}
	return nil
}

func (f *Fetcher) lookupChecksum(ctx context.Context, sumsURL, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sumsURL, nil)
	if err != nil {
		return "", &models.TransferError{URL: sumsURL, Err: err}
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return "", &models.TransferError{URL: sumsURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &models.TransferError{URL: sumsURL, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	digest, err := ParseChecksums(resp.Body, name)
	if err != nil {
		return "", &models.TransferError{URL: sumsURL, Err: err}
	}
	return digest, nil
}

// ParseChecksums finds the digest for name in sha256sum-style output. Lines
// of a surrounding PGP signature are skipped.
func ParseChecksums(r io.Reader, name string) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || len(fields[0]) != sha256.Size*2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") == name {
			return strings.ToLower(fields[0]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read checksum list: %w", err)
	}
	return "", fmt.Errorf("no checksum listed for %s", name)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}
