package workspace

import (
	"os"
	"path/filepath"
	"slices"
)

// ExpandMembers resolves [workspace].members patterns relative to root.
// Patterns use filepath.Match syntax; only directories match. Entries
// matching an exclude pattern are dropped and duplicates are kept once, in
// first-seen order. Literal members that do not exist are returned in
// missing.
func ExpandMembers(root string, members, exclude []string) (found, missing []string) {
	seen := map[string]bool{}
	add := func(rel string) {
		rel = filepath.ToSlash(filepath.Clean(rel))
		if seen[rel] || excluded(rel, exclude) {
			return
		}
		seen[rel] = true
		found = append(found, rel)
	}

	for _, pattern := range members {
		if !hasMeta(pattern) {
			if isDir(filepath.Join(root, pattern)) {
				add(pattern)
			} else {
				missing = append(missing, pattern)
			}
			continue
		}
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil || len(matches) == 0 {
			missing = append(missing, pattern)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			if !isDir(m) {
				continue
			}
			rel, err := filepath.Rel(root, m)
			if err != nil {
				continue
			}
			add(rel)
		}
	}
	return found, missing
}

func excluded(rel string, exclude []string) bool {
	for _, pattern := range exclude {
		pattern = filepath.ToSlash(filepath.Clean(pattern))
		if pattern == rel {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
