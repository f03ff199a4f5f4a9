// Package archive unpacks downloaded texture archives.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

// ZIP file signatures (magic bytes)
var zipSignatures = [][]byte{
	{0x50, 0x4B, 0x03, 0x04}, // Standard ZIP
	{0x50, 0x4B, 0x05, 0x06}, // Empty ZIP
	{0x50, 0x4B, 0x07, 0x08}, // Spanned ZIP
}

// ZipExtractor extracts ZIP archives in-process
type ZipExtractor struct {
	bufferSize int
}

// Ensure ZipExtractor implements port.Extractor
var _ port.Extractor = (*ZipExtractor)(nil)

// NewZipExtractor creates a new ZipExtractor
func NewZipExtractor(bufferSize int) *ZipExtractor {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &ZipExtractor{bufferSize: bufferSize}
}

// Name returns the extractor name
func (z *ZipExtractor) Name() string {
	return "ZIP"
}

// Extract unpacks archivePath into destDir and returns the extracted file paths.
// destDir is removed again if anything fails, including an archive with no files.
func (z *ZipExtractor) Extract(ctx context.Context, archivePath, destDir string) (files []string, err error) {
	ok, err := hasZipSignature(archivePath)
	if err != nil {
		return nil, domain.NewFilesystemError("open archive", err)
	}
	if !ok {
		return nil, domain.NewArchiveError("verify signature", domain.ErrNotZipArchive)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, domain.NewArchiveError("read archive", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, domain.NewFilesystemError("create extraction dir", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(destDir)
			files = nil
		}
	}()

	buf := make([]byte, z.bufferSize)
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return nil, domain.NewArchiveError(f.Name, err)
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, domain.NewFilesystemError("create dir", err)
			}
		case mode.IsRegular():
			if err := z.extractFile(f, target, buf); err != nil {
				return nil, err
			}
			files = append(files, target)
		default:
			// symlinks and devices are not part of texture sets
		}
	}

	if len(files) == 0 {
		return nil, domain.NewArchiveError("extract", domain.ErrEmptyArchive)
	}
	return files, nil
}

func (z *ZipExtractor) extractFile(f *zip.File, target string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return domain.NewFilesystemError("create dir", err)
	}

	src, err := f.Open()
	if err != nil {
		return domain.NewArchiveError(f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return domain.NewFilesystemError("create file", err)
	}

	if _, err := io.CopyBuffer(&sourceWriter{w: dst}, src, buf); err != nil {
		dst.Close()
		if we, ok := err.(*writeError); ok {
			return domain.NewFilesystemError("write "+f.Name, we.err)
		}
		return domain.NewArchiveError(f.Name, err)
	}
	if err := dst.Close(); err != nil {
		return domain.NewFilesystemError("close "+f.Name, err)
	}
	return nil
}

// writeError marks failures on the destination side of a copy so they can be
// told apart from corrupt archive data.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

type sourceWriter struct{ w io.Writer }

func (s *sourceWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}

// safeJoin resolves an entry name under destDir and rejects traversal
func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", domain.ErrUnsafePath
	}
	target := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrUnsafePath
	}
	return target, nil
}

// hasZipSignature checks if the file has a valid ZIP magic byte signature
func hasZipSignature(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header := make([]byte, 4)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	if n < 4 {
		return false, nil
	}

	for _, sig := range zipSignatures {
		if bytes.Equal(header, sig) {
			return true, nil
		}
	}
	return false, nil
}
