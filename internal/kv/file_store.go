package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/2beens/vitalscale/pkg"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps each key in its own file under the root path.
// Writes go through a temp file + rename, so a crash mid-write
// never leaves a half-written collection behind.
type FileStore struct {
	rootPath string
	mutex    sync.RWMutex
}

func NewFileStore(rootPath string) (*FileStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}

	exists, err := pkg.PathExists(rootPath, true)
	if err != nil {
		return nil, fmt.Errorf("check root path %s: %w", rootPath, err)
	}
	if !exists {
		if err := os.MkdirAll(rootPath, 0o755); err != nil {
			return nil, fmt.Errorf("create root path %s: %w", rootPath, err)
		}
		log.Debugf("file store: created root path: %s", rootPath)
	}

	return &FileStore{
		rootPath: rootPath,
	}, nil
}

func (fs *FileStore) filePath(key string) string {
	return path.Join(fs.rootPath, key+".json")
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	value, err := os.ReadFile(fs.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return value, nil
}

func (fs *FileStore) Set(_ context.Context, key string, value []byte) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	filePath := fs.filePath(key)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}

	log.Tracef("file store: key [%s] saved, %d bytes", key, len(value))

	return nil
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if err := os.Remove(fs.filePath(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", key, err)
	}

	return nil
}
