// Package fsutil holds the small filesystem primitives the sync and export
// engines need: directory creation, recursive copy with overwrite
// semantics, binary-safe read/write, and human-readable size formatting.
package fsutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultFileMode is used when a source file's permissions are unknown.
const DefaultFileMode = os.FileMode(0644)

// EnsureDir creates dir and all missing parents, a no-op if it already
// exists as a directory.
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		return errors.WithMessage(err, "fsutil: ensure dir "+dir)
	}
	return nil
}

// EnsureParentDir creates the parent directory of path.
func EnsureParentDir(path string) error {
	return EnsureDir(filepath.Dir(path))
}

// ReadFile reads the full, binary-safe contents of path.
func ReadFile(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "fsutil: read "+path)
	}
	return data, nil
}

// WriteFile writes data to path, creating parent directories as needed and
// preserving mode if the file already exists, else using DefaultFileMode.
func WriteFile(path string, data []byte) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	mode := DefaultFileMode
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode()
	}
	if err := ioutil.WriteFile(path, data, mode); err != nil {
		return errors.WithMessage(err, "fsutil: write "+path)
	}
	return nil
}

// Exists reports whether path exists at all (file, dir, or otherwise).
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// RemoveAll is a thin, error-wrapped alias over os.RemoveAll, named so call
// sites read like the rest of this package's vocabulary.
func RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.WithMessage(err, "fsutil: remove "+path)
	}
	return nil
}

// CopyTree recursively copies src onto dst. If dst already exists it is
// removed first - CopyTree always leaves dst as an exact copy of src, it
// never merges file by file (callers that need file-by-file conflict
// resolution do that above this layer, one file at a time).
func CopyTree(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.WithMessage(err, "fsutil: stat src "+src)
	}
	if Exists(dst) {
		if err := RemoveAll(dst); err != nil {
			return err
		}
	}
	if srcInfo.IsDir() {
		return copyDir(src, dst, srcInfo.Mode())
	}
	if err := EnsureParentDir(dst); err != nil {
		return err
	}
	return copyFile(src, dst, srcInfo.Mode())
}

func copyDir(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(dst, mode|0700); err != nil {
		return errors.WithMessage(err, "fsutil: mkdir "+dst)
	}
	entries, err := ioutil.ReadDir(src)
	if err != nil {
		return errors.WithMessage(err, "fsutil: readdir "+src)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath, entry.Mode()); err != nil {
				return err
			}
			continue
		}
		if entry.Mode()&os.ModeSymlink != 0 {
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath, entry.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithMessage(err, "fsutil: open "+src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.WithMessage(err, "fsutil: create "+dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.WithMessage(err, "fsutil: copy "+src+" -> "+dst)
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return errors.WithMessage(err, "fsutil: readlink "+src)
	}
	if err := os.Symlink(target, dst); err != nil {
		return errors.WithMessage(err, "fsutil: symlink "+dst)
	}
	return nil
}

// TreeSize sums the size of every non-directory entry under path (if path
// is itself a regular file, its own size).
func TreeSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errors.WithMessage(err, "fsutil: size "+path)
	}
	return total, nil
}

// FormatSize renders n bytes as a short, human-readable string using base
// 1024 units (e.g. "1.5 KiB", "3.0 MiB"), for trace logging when a neuron's
// directory contents are materialized.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), units[exp])
}
