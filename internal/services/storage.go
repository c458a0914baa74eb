package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"candidate-screener/internal/errs"
)

// FileStorage persists uploaded documents on local disk under randomized
// names, so two uploads with the same original filename never collide.
type FileStorage interface {
	SaveFile(file *multipart.FileHeader, docType string) (filename string, filePath string, err error)
	EnsureUploadDir() error
	DeleteFile(filename string) error
}

type fileStorage struct {
	uploadPath string
}

func NewFileStorage(uploadPath string) FileStorage {
	return &fileStorage{uploadPath: uploadPath}
}

func (s *fileStorage) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	return nil
}

func (s *fileStorage) SaveFile(file *multipart.FileHeader, docType string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" {
		return "", "", errs.Newf(errs.KindFatal, "only PDF files are accepted, got %q", ext)
	}

	filename := fmt.Sprintf("%s_%s%s", docType, uuid.New().String(), ext)
	filePath := filepath.Join(s.uploadPath, filename)

	src, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, filePath, nil
}

func (s *fileStorage) DeleteFile(filename string) error {
	if err := os.Remove(filepath.Join(s.uploadPath, filename)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
