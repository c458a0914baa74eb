package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

const (
	DocumentTypeCV            DocumentType = "cv"
	DocumentTypeProjectReport DocumentType = "project_report"
)

type Document struct {
	ID               uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Filename         string       `gorm:"type:text" json:"filename"`
	OriginalFileName string       `gorm:"type:text" json:"original_filename"`
	DocumentType     DocumentType `gorm:"type:text;not null" json:"document_type"`
	FilePath         string       `gorm:"type:text" json:"file_path"`
	FileSize         int64        `gorm:"type:bigint" json:"file_size"`
	CreatedAt        time.Time    `gorm:"type:timestamp;default:now()" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"type:timestamp;default:now()" json:"updated_at"`
}

func (d *Document) TableName() string {
	return "documents"
}
