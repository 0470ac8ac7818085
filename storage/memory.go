package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Storage implementation for tests and ephemeral
// indexes. Thread-safe for concurrent reads and writes.
type Memory struct {
	mu      sync.RWMutex
	files   map[string]memoryFile
	folders map[string]bool
}

type memoryFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory creates a new in-memory storage.
func NewMemory() *Memory {
	return &Memory{
		files:   make(map[string]memoryFile),
		folders: make(map[string]bool),
	}
}

// CreateFile writes a new file, failing if the target already exists.
func (m *Memory) CreateFile(_ context.Context, filePath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[filePath]; ok {
		return fmt.Errorf("create %s: %w", filePath, ErrExists)
	}
	m.files[filePath] = memoryFile{data: clone(data), modTime: time.Now()}
	return nil
}

// CreateFolder records a folder path.
func (m *Memory) CreateFolder(_ context.Context, folderPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.folders[cleanFolder(folderPath)] = true
	return nil
}

// DeleteFile removes a file.
func (m *Memory) DeleteFile(_ context.Context, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[filePath]; !ok {
		return fmt.Errorf("delete %s: %w", filePath, ErrNotFound)
	}
	delete(m.files, filePath)
	return nil
}

// DeleteFolder removes a folder and everything beneath it.
func (m *Memory) DeleteFolder(_ context.Context, folderPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := cleanFolder(folderPath) + "/"
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			delete(m.files, name)
		}
	}
	for name := range m.folders {
		if name == cleanFolder(folderPath) || strings.HasPrefix(name+"/", prefix) {
			delete(m.folders, name)
		}
	}
	return nil
}

// GetDetails returns file details for a path.
func (m *Memory) GetDetails(_ context.Context, filePath string) (FileDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.files[filePath]; ok {
		return FileDetails{Size: int64(len(f.data)), ModTime: f.modTime}, nil
	}
	if m.folderExistsLocked(filePath) {
		return FileDetails{IsDir: true}, nil
	}
	return FileDetails{}, fmt.Errorf("stat %s: %w", filePath, ErrNotFound)
}

// ListFiles returns the names of the files directly inside a folder.
func (m *Memory) ListFiles(_ context.Context, folderPath string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := cleanFolder(folderPath) + "/"
	var names []string
	for name := range m.files {
		if strings.HasPrefix(name, prefix) && !strings.Contains(name[len(prefix):], "/") {
			names = append(names, path.Base(name))
		}
	}
	return names, nil
}

// PathExists reports whether a file or folder exists.
func (m *Memory) PathExists(_ context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[p]; ok {
		return true, nil
	}
	return m.folderExistsLocked(p), nil
}

// ReadFile returns the full contents of a file.
func (m *Memory) ReadFile(_ context.Context, filePath string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[filePath]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", filePath, ErrNotFound)
	}
	return clone(f.data), nil
}

// UpsertFile writes a file, replacing any existing content.
func (m *Memory) UpsertFile(_ context.Context, filePath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[filePath] = memoryFile{data: clone(data), modTime: time.Now()}
	return nil
}

func (m *Memory) folderExistsLocked(p string) bool {
	cleaned := cleanFolder(p)
	if m.folders[cleaned] {
		return true
	}
	prefix := cleaned + "/"
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func cleanFolder(p string) string {
	return strings.TrimSuffix(path.Clean(p), "/")
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
