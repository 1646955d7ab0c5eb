package datastore

import (
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// MemFileSystem is an in-memory FileSystem for tests. Setting one of the
// *Err fields makes the matching method fail with that error.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string]memFile

	StatErr      error
	ReadFileErr  error
	WriteFileErr error
	RenameErr    error
	RemoveErr    error
}

type memFile struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

type memFileInfo struct {
	name string
	file memFile
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return int64(len(fi.file.data)) }
func (fi memFileInfo) Mode() fs.FileMode  { return fi.file.mode }
func (fi memFileInfo) ModTime() time.Time { return fi.file.modTime }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() any           { return nil }

// NewMemFileSystem returns an empty in-memory file system.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]memFile)}
}

func (m *MemFileSystem) Stat(name string) (fs.FileInfo, error) {
	if m.StatErr != nil {
		return nil, m.StatErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return memFileInfo{name: filepath.Base(name), file: f}, nil
}

func (m *MemFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileErr != nil {
		return nil, m.ReadFileErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return slices.Clone(f.data), nil
}

func (m *MemFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if m.WriteFileErr != nil {
		return m.WriteFileErr
	}
	m.Put(name, data)
	return nil
}

func (m *MemFileSystem) Rename(oldpath, newpath string) error {
	if m.RenameErr != nil {
		return m.RenameErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	m.files[newpath] = f
	delete(m.files, oldpath)
	return nil
}

func (m *MemFileSystem) Remove(name string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

// Put stores data at name, bypassing error injection.
func (m *MemFileSystem) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = memFile{data: slices.Clone(data), mode: 0o644, modTime: time.Now()}
}

// Exists reports whether name is present.
func (m *MemFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok
}

// Contents returns a copy of name's data.
func (m *MemFileSystem) Contents(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(f.data), true
}

// Names lists stored paths in lexical order.
func (m *MemFileSystem) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}
