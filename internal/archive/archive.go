// Package archive unpacks downloaded engine archives and lays out their
// support files.
package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"enginectl/internal/common/fsutil"
)

// ExtractionError reports a failure to unpack an archive.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", filepath.Base(e.Archive), e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err carries an *ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

var errUnsupported = errors.New("unsupported archive format")

// Install extracts archivePath into destDir, removes the archive and, when
// promoteDir is non-empty, copies its support files up into destDir.
func Install(archivePath, destDir, promoteDir string) error {
	if err := Extract(archivePath, destDir); err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	if promoteDir == "" {
		return nil
	}
	if _, err := PromoteSupportFiles(promoteDir, destDir); err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	return nil
}

// Extract unpacks a .tar.gz, .tgz, .tar or .zip archive into destDir.
// Entries escaping destDir are rejected.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	name := strings.ToLower(archivePath)
	var err error
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		err = extractTarGz(archivePath, destDir)
	case strings.HasSuffix(name, ".tar"):
		err = withFile(archivePath, func(f *os.File) error { return extractTar(f, destDir) })
	case strings.HasSuffix(name, ".zip"):
		err = extractZip(archivePath, destDir)
	default:
		err = errUnsupported
	}
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	return nil
}

// PromoteSupportFiles copies the regular files of srcDir whose names do not
// contain "engine" into dstDir and returns the copied names.
func PromoteSupportFiles(srcDir, dstDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}
	var copied []string
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), "engine") {
			continue
		}
		if err := fsutil.CopyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
			return copied, err
		}
		copied = append(copied, e.Name())
	}
	return copied, nil
}

func withFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func extractTarGz(archivePath, destDir string) error {
	return withFile(archivePath, func(f *os.File) error {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		return extractTar(zr, destDir)
	})
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !within(destDir, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				return fmt.Errorf("symlink %s escapes destination", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// hard links, devices and fifos are not part of engine releases
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, zf := range zr.File {
		target, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, zf.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins name onto root and fails if the result leaves root.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
