package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage handles saving audio files to the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
	}
}

func (ls *LocalStorage) path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(ls.basePath, filepath.FromSlash(key)), nil
}

// Save writes data below the base path, creating directories as needed
func (ls *LocalStorage) Save(_ context.Context, key string, data []byte) (string, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return fullPath, nil
}

func (ls *LocalStorage) Load(_ context.Context, key string) ([]byte, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (ls *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := ls.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

func (ls *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// URL returns the full local path of key
func (ls *LocalStorage) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return ls.path(key)
}

func (ls *LocalStorage) Mode() string {
	return ModeLocal
}

func (ls *LocalStorage) Info() map[string]any {
	return map[string]any{
		"storage_mode":    ModeLocal,
		"local_base_path": ls.basePath,
		"s3_available":    false,
	}
}
