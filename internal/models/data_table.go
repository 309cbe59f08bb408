package models

import (
	"time"

	"gorm.io/datatypes"
)

// DataTable is the persisted form of one decoded sheet.
type DataTable struct {
	ID          string                      `json:"id" gorm:"primaryKey;size:36"`
	FileID      string                      `json:"fileId" gorm:"size:36;not null;index"`
	File        *DataFile                   `json:"-" gorm:"foreignKey:FileID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Name        string                      `json:"name" gorm:"size:255;not null"`
	Description string                      `json:"description"`
	Headers     datatypes.JSONSlice[string] `json:"headers" gorm:"not null"`
	Data        datatypes.JSONSlice[[]any]  `json:"data" gorm:"not null"`
	RecordCount int                         `json:"recordCount" gorm:"not null"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
	IsActive    bool                        `json:"isActive" gorm:"not null;default:true"`
}

func (DataTable) TableName() string { return "data_tables" }

// Rows returns the header row followed by the data rows.
func (t *DataTable) Rows() [][]any {
	rows := make([][]any, 0, len(t.Data)+1)
	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	rows = append(rows, header)
	return append(rows, t.Data...)
}

// TableListing is a DataTable annotated with its owning file.
type TableListing struct {
	DataTable
	FileName   string `json:"fileName"`
	FileStatus string `json:"fileStatus"`
}

// TableUpdate lists the mutable fields of a DataTable. Nil fields are left
// untouched.
type TableUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}
