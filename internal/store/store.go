// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/autobrr/keeper/internal/license"
)

const fileMode = 0o600

// FileStore persists the single signed license file. Readers and writers inside
// the process are serialised; other processes only ever observe a complete file
// because writes go through a rename.
type FileStore struct {
	mu   sync.RWMutex
	fs   afero.Fs
	path string
}

// New creates a store for path on fs. A leading ~ in path is expanded.
func New(fs afero.Fs, path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("license file path is empty")
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand license path: %w", err)
	}

	return &FileStore{fs: fs, path: filepath.Clean(expanded)}, nil
}

// NewOS creates a store on the operating system filesystem
func NewOS(path string) (*FileStore, error) {
	return New(afero.NewOsFs(), path)
}

// Path returns the resolved file location
func (s *FileStore) Path() string {
	return s.path
}

// Read returns the raw file bytes. A missing file is reported as FileMissing.
func (s *FileStore) Read() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, license.NewFault(license.FaultFileMissing, "read license file", err)
		}
		return nil, fmt.Errorf("read license file: %w", err)
	}
	return data, nil
}

// Write atomically replaces the file with data. On any failure the previous file
// is left untouched.
func (s *FileStore) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create license directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if rmErr := s.fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", tmpName).Msg("Failed to remove temp license file")
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, fileMode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace license file: %w", err)
	}

	log.Debug().Str("path", s.path).Int("bytes", len(data)).Msg("License file written")
	return nil
}

// Delete removes the file. A missing file is not an error.
func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete license file: %w", err)
	}
	return nil
}

// Exists reports whether the file is present
func (s *FileStore) Exists() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return afero.Exists(s.fs, s.path)
}
