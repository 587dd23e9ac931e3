package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"context-rag-platform/models"
)

// FileStorageService stores uploaded document files on disk under
// baseDir/<context id>/, named by a generated ID so uploads with colliding
// filenames never overwrite each other.
type FileStorageService struct {
	baseDir     string
	maxFileSize int64
}

// NewFileStorageService creates a new file storage service
func NewFileStorageService(baseDir string, maxFileSize int64) *FileStorageService {
	return &FileStorageService{
		baseDir:     baseDir,
		maxFileSize: maxFileSize,
	}
}

// Save streams the upload to disk, hashing as it copies. Returns the stored
// path, the SHA-256 content hash, and the byte size.
func (fs *FileStorageService) Save(contextID, originalName string, r io.Reader) (string, string, int64, error) {
	dir := filepath.Join(fs.baseDir, "uploads", contextID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(dir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	hasher := sha256.New()
	// +1 so an exactly-at-limit file passes and an over-limit file is caught
	size, err := io.Copy(io.MultiWriter(out, hasher), io.LimitReader(r, fs.maxFileSize+1))
	if err != nil {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("failed to store file: %w", err)
	}
	if size > fs.maxFileSize {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("%w: file exceeds maximum size of %d bytes", models.ErrValidation, fs.maxFileSize)
	}

	return path, hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// DeleteContextFiles removes every stored upload belonging to the context.
func (fs *FileStorageService) DeleteContextFiles(contextID string) error {
	dir := filepath.Join(fs.baseDir, "uploads", contextID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete context uploads: %w", err)
	}
	return nil
}
