package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File keeps every key in a single JSON object on disk. Values must be valid
// JSON; they are stored inline so the file stays human-readable.
type File struct {
	Path string
	// StrictPerms writes the file 0600 and its directory 0700.
	StrictPerms bool

	mu sync.Mutex
}

func (f *File) load() (map[string]json.RawMessage, error) {
	data := map[string]json.RawMessage{}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return data, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := data[key]
	if !ok {
		return nil, false, nil
	}
	// the file is indented as a whole; hand values back compact
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("kvstore: value for %q is not valid JSON", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = json.RawMessage(append([]byte(nil), value...))
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	dirPerm, filePerm := os.FileMode(0o755), os.FileMode(0o644)
	if f.StrictPerms {
		dirPerm, filePerm = 0o700, 0o600
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return err
		}
	}
	// write-then-rename so a crash never leaves a truncated file
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, out, filePerm); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}
