package workspace

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are never descended into when counting source lines.
var skipDirs = map[string]bool{
	"target": true,
	".git":   true,
}

// CountLines returns the number of newline characters across every *.rs file
// under root. Unreadable files are skipped; the first error is returned with
// the partial count.
func CountLines(root string) (int, error) {
	total := 0
	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			note(err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".rs") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			note(err)
			return nil
		}
		total += bytes.Count(raw, []byte{'\n'})
		return nil
	})
	if err != nil {
		note(err)
	}
	return total, firstErr
}
