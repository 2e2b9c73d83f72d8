package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// DocumentStore keeps uploaded documents as files under baseDir
type DocumentStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewDocumentStore creates baseDir if needed and returns a store rooted there
func NewDocumentStore(baseDir string, logger *zap.Logger) (*DocumentStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	return &DocumentStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Save writes content under key. The file is renamed into place so readers
// never see a partial document.
func (s *DocumentStore) Save(ctx context.Context, key string, content []byte) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		s.logger.Error("Failed to store document",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Debug("Document stored",
		zap.String("key", key),
		zap.Int("size", len(content)))
	return nil
}

// Read returns the document stored under key, or entity.ErrNotFound
func (s *DocumentStore) Read(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("document %s: %w", key, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

// Delete removes the document. Missing documents are not an error.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// resolve joins key onto baseDir and rejects keys escaping it
func (s *DocumentStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty document key", entity.ErrInvalidInput)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, key))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: document key escapes storage directory: %s", entity.ErrInvalidInput, key)
	}
	return absPath, nil
}

var _ port.DocumentStorage = (*DocumentStore)(nil)
