package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents, then recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeLLMCacheByAge removes entries whose modification time is older than
// maxAge. It returns the number of files removed.
func PurgeLLMCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now()
	removed := 0
	err := walkEntries(dir, func(path string, info fs.FileInfo) {
		if now.Sub(info.ModTime()) > maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
	})
	return removed, err
}

// EnforceLLMCacheLimits evicts least recently used entries until at most
// maxCount remain. maxCount <= 0 disables the limit.
func EnforceLLMCacheLimits(dir string, maxCount int) (int, error) {
	if maxCount <= 0 {
		return 0, nil
	}
	type entry struct {
		path string
		mod  time.Time
	}
	var entries []entry
	err := walkEntries(dir, func(path string, info fs.FileInfo) {
		entries = append(entries, entry{path: path, mod: info.ModTime()})
	})
	if err != nil {
		return 0, err
	}
	if len(entries) <= maxCount {
		return 0, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.Before(entries[j].mod) })
	removed := 0
	for _, e := range entries[:len(entries)-maxCount] {
		if os.Remove(e.path) == nil {
			removed++
		}
	}
	return removed, nil
}

func walkEntries(dir string, fn func(path string, info fs.FileInfo)) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fn(path, info)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
