// Package fileutil replaces files atomically so readers never observe a
// partially written result or checkpoint.
package fileutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic streams write into a temp file next to path, syncs it, and
// renames it over path. On any error path is left untouched.
func WriteFileAtomic(path string, mode os.FileMode, write func(w io.Writer) error) error {
	return ReplaceFile(path, func(tmpPath string) error {
		out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		buffered := bufio.NewWriter(out)
		if err := write(buffered); err != nil {
			_ = out.Close()
			return err
		}
		if err := buffered.Flush(); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Sync(); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	})
}

// ReplaceFile hands build a fresh temp path in the destination directory and
// renames the result over path once build succeeds. It suits writers that
// insist on opening the file themselves, such as database drivers.
func ReplaceFile(path string, build func(tmpPath string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	// Some writers refuse to reuse an existing file.
	_ = os.Remove(tmpPath)

	if err := build(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
