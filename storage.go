package apngdis

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Storage receives the output files.
type Storage interface {
	// Create opens a new file for writing, replacing any existing one.
	Create(name string) (io.WriteCloser, error)
}

// LocalStorage writes files below a directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage returns a LocalStorage rooted at baseDir, creating the
// directory if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Create creates name below the base directory, including any parent
// directories in name.
func (s *LocalStorage) Create(name string) (io.WriteCloser, error) {
	fullPath := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(fullPath)
}

// Path returns the filesystem path of name.
func (s *LocalStorage) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// MemoryStorage keeps files in memory. A file becomes visible when it is
// closed.
type MemoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func (s *MemoryStorage) Create(name string) (io.WriteCloser, error) {
	return &memFile{s: s, name: name}, nil
}

// Files returns the names of all closed files, sorted.
func (s *MemoryStorage) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes returns the contents of a closed file.
func (s *MemoryStorage) Bytes(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

type memFile struct {
	s      *MemoryStorage
	name   string
	buf    bytes.Buffer
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	return f.buf.Write(p)
}

func (f *memFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	f.s.mu.Lock()
	f.s.files[f.name] = f.buf.Bytes()
	f.s.mu.Unlock()
	return nil
}
