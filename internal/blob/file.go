package blob

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a Backend that keeps each key as a file under a base directory.
// Writes go through a temp file + rename so readers never observe a torn
// blob; the compare-and-write step is serialized by a process-local mutex,
// which matches the single-writer deployment this service targets.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile returns a filesystem backend rooted at dir. The directory must
// already exist.
func NewFile(dir string) (*File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("blob: base path is not a directory")
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, filepath.Base(key))
}

// Get implements Backend.
func (f *File) Get(ctx context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return data, ContentETag(data), nil
}

// Put implements Backend.
func (f *File) Put(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	cur, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if expectedETag != "" {
			return "", ErrETagMismatch
		}
	case err != nil:
		return "", err
	default:
		if ContentETag(cur) != expectedETag {
			return "", ErrETagMismatch
		}
	}

	tmp, err := os.CreateTemp(f.dir, ".blob-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return ContentETag(data), nil
}
