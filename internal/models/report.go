package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReportType string

const (
	ReportTypeSummary  ReportType = "summary"
	ReportTypeDetailed ReportType = "detailed"
	ReportTypeCustom   ReportType = "custom"
)

type ReportFormat string

const (
	ReportFormatPDF   ReportFormat = "pdf"
	ReportFormatExcel ReportFormat = "excel"
	ReportFormatCSV   ReportFormat = "csv"
)

// Extension returns the file extension used for rendered output.
func (f ReportFormat) Extension() string {
	switch f {
	case ReportFormatExcel:
		return "xlsx"
	default:
		return string(f)
	}
}

// Report is a named export configuration derived from a table.
type Report struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	UserID      string         `json:"userId" gorm:"size:36;not null;index"`
	User        *User          `json:"-" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	TableID     string         `json:"tableId" gorm:"size:36;not null;index"`
	Table       *DataTable     `json:"-" gorm:"foreignKey:TableID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	Description string         `json:"description"`
	ReportType  ReportType     `json:"reportType" gorm:"size:32;not null"`
	Config      datatypes.JSON `json:"config" gorm:"not null"`
	GeneratedAt time.Time      `json:"generatedAt" gorm:"not null"`
	Format      ReportFormat   `json:"format" gorm:"size:16;not null"`
	FilePath    *string        `json:"filePath"`
}

func (Report) TableName() string { return "reports" }
