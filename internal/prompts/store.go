package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// validKeyPattern matches valid prompt keys (alphanumeric with dots, underscores).
var validKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._]*$`)

const overrideExt = ".tmpl"

// OverrideDir stores prompt overrides as "<key>.tmpl" files in one directory.
type OverrideDir struct {
	dir string
}

// NewOverrideDir returns an override store rooted at dir. The directory is
// created on first write.
func NewOverrideDir(dir string) *OverrideDir {
	return &OverrideDir{dir: dir}
}

// Dir returns the directory holding override files.
func (o *OverrideDir) Dir() string {
	return o.dir
}

func (o *OverrideDir) path(key string) (string, error) {
	if !validKeyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid prompt key: %s", key)
	}
	return filepath.Join(o.dir, key+overrideExt), nil
}

// Get returns the override text for key. ok is false when no override exists.
func (o *OverrideDir) Get(key string) (text, path string, ok bool, err error) {
	path, err = o.path(key)
	if err != nil {
		return "", "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("reading override %s: %w", key, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", "", false, nil
	}
	return string(data), path, true, nil
}

// Put writes an override for key.
func (o *OverrideDir) Put(key, text string) error {
	path, err := o.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// Remove deletes the override for key, if any.
func (o *OverrideDir) Remove(key string) error {
	path, err := o.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing override %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys that currently have overrides.
func (o *OverrideDir) Keys() ([]string, error) {
	entries, err := os.ReadDir(o.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing prompts directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, overrideExt) {
			continue
		}
		key := strings.TrimSuffix(name, overrideExt)
		if validKeyPattern.MatchString(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
