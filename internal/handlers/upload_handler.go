package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"candidate-screener/internal/models"
	"candidate-screener/internal/repositories"
	"candidate-screener/internal/services"
)

type UploadHandler struct {
	docRepo     repositories.DocumentRepository
	storage     services.FileStorage
	maxFileSize int64
	log         *zap.Logger
}

func NewUploadHandler(
	docRepo repositories.DocumentRepository,
	storage services.FileStorage,
	maxFileSize int64,
	log *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		docRepo:     docRepo,
		storage:     storage,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// HandleUpload handles POST /upload. The multipart form may carry a "cv"
// part, a "project_report" part, or both; each stored file gets its own
// document record and id.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse multipart form",
		})
	}

	var responses []models.UploadResponse

	for field, docType := range map[string]models.DocumentType{
		"cv":             models.DocumentTypeCV,
		"project_report": models.DocumentTypeProjectReport,
	} {
		files, ok := form.File[field]
		if !ok || len(files) == 0 {
			continue
		}
		file := files[0]

		if file.Size > h.maxFileSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("%s file too large, max size is %d bytes", field, h.maxFileSize),
			})
		}

		filename, filePath, err := h.storage.SaveFile(file, string(docType))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to store %s: %v", field, err),
			})
		}

		doc := models.Document{
			ID:               uuid.New(),
			Filename:         filename,
			OriginalFileName: file.Filename,
			DocumentType:     docType,
			FilePath:         filePath,
			FileSize:         file.Size,
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}

		if err := h.docRepo.Create(&doc); err != nil {
			// The record failed, so the orphaned file goes too.
			if derr := h.storage.DeleteFile(filename); derr != nil {
				h.log.Warn("failed to clean up orphaned upload",
					zap.String("filename", filename), zap.Error(derr))
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to record %s document", field),
			})
		}

		h.log.Info("document uploaded",
			zap.String("document_id", doc.ID.String()),
			zap.String("document_type", string(docType)),
			zap.Int64("size", file.Size))

		responses = append(responses, models.UploadResponse{
			ID:           doc.ID.String(),
			Filename:     doc.Filename,
			OriginalName: doc.OriginalFileName,
			DocumentType: string(doc.DocumentType),
			FileSize:     doc.FileSize,
		})
	}

	if len(responses) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "no valid files uploaded, expected 'cv' and/or 'project_report' PDF files",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "files uploaded successfully",
		"documents": responses,
	})
}
