// Package io writes run artifacts so that readers never observe a partial
// file: content goes to a temp file in the target directory, is synced,
// and is renamed into place.
package io

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdio "io"
	"os"
	"path/filepath"
)

// WriteAtomic streams fill into a temp file next to path and renames it
// over path once fill and the flush succeed. On any failure the temp file
// is removed and path is left untouched.
func WriteAtomic(path string, fill func(w stdio.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fill(bw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data to path atomically.
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, func(w stdio.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteJSONAtomic writes v as indented JSON.
func WriteJSONAtomic(path string, v any) error {
	return WriteAtomic(path, func(w stdio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteJSONLinesAtomic writes one compact JSON document per element of
// rows, newline separated.
func WriteJSONLinesAtomic[T any](path string, rows []T) error {
	return WriteAtomic(path, func(w stdio.Writer) error {
		enc := json.NewEncoder(w)
		for i := range rows {
			if err := enc.Encode(rows[i]); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
}
