package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps one YAML document per ref under Dir, at
// <Dir>/<owner>/<name>.yaml.
type FileStore[T any] struct {
	Dir string
	mu  sync.Mutex
}

type fileRecord[T any] struct {
	Meta     Meta `yaml:"meta"`
	Snapshot T    `yaml:"snapshot"`
}

func NewFileStore[T any](dir string) *FileStore[T] {
	return &FileStore[T]{Dir: dir}
}

func (s *FileStore[T]) path(ref Ref) (string, error) {
	key, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)+".yaml"), nil
}

func (s *FileStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	path, err := s.path(ref)
	if err != nil {
		return zero, Meta{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, err
	}
	var record fileRecord[T]
	if err := yaml.Unmarshal(b, &record); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %s: %w", path, err)
	}
	return record.Snapshot, record.Meta, true, nil
}

// Save writes through a temporary file so readers never observe a partial
// document.
func (s *FileStore[T]) Save(_ context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	path, err := s.path(ref)
	if err != nil {
		return Meta{}, err
	}
	b, err := yaml.Marshal(fileRecord[T]{Meta: meta, Snapshot: snapshot})
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Meta{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".preset-*")
	if err != nil {
		return Meta{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return Meta{}, err
	}
	if err := tmp.Close(); err != nil {
		return Meta{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Meta{}, err
	}
	return cloneMeta(meta), nil
}

func (s *FileStore[T]) List(_ context.Context, owner string) ([]Ref, error) {
	key, err := Ref{Owner: owner, Name: "x"}.normalized()
	if err != nil {
		return nil, err
	}
	owner = key.Owner

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(s.Dir, owner))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".yaml")
		if entry.IsDir() || !ok || strings.HasPrefix(name, ".") {
			continue
		}
		refs = append(refs, Ref{Owner: owner, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
