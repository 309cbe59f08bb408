package models

import "time"

// FileStatus is the lifecycle stage of an uploaded file.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// CanTransitionTo reports whether next is a legal successor of s.
// The lifecycle is pending -> processing -> {completed | error}.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	switch s {
	case FileStatusPending:
		return next == FileStatusProcessing
	case FileStatusProcessing:
		return next == FileStatusCompleted || next == FileStatusError
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can happen.
func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusError
}

// DataFile represents metadata about one uploaded spreadsheet.
type DataFile struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	UserID         string     `json:"userId" gorm:"size:36;not null;index"`
	User           *User      `json:"-" gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Filename       string     `json:"filename" gorm:"size:255;not null"` // name in the raw file store
	OriginalName   string     `json:"originalName" gorm:"size:255;not null"`
	FileSize       int64      `json:"fileSize" gorm:"not null"`
	MimeType       string     `json:"mimeType" gorm:"size:128;not null"`
	UploadedAt     time.Time  `json:"uploadedAt" gorm:"not null;index"`
	ProcessedAt    *time.Time `json:"processedAt"`
	Status         FileStatus `json:"status" gorm:"size:16;not null;index"`
	ProcessingTime *float64   `json:"processingTime"` // seconds
	RecordCount    int        `json:"recordCount" gorm:"not null;default:0"`
	ErrorMessage   *string    `json:"errorMessage"`
}

func (DataFile) TableName() string { return "data_files" }

// StatusUpdate describes one status transition of a DataFile. Nil fields
// are left untouched.
type StatusUpdate struct {
	Status         FileStatus
	ProcessingTime *float64
	RecordCount    *int
	ErrorMessage   *string
}

// FileStatusView is the body returned by the status polling endpoint.
type FileStatusView struct {
	Status       FileStatus `json:"status"`
	RecordCount  int        `json:"recordCount"`
	ErrorMessage *string    `json:"errorMessage"`
}

// StatusView returns the status fields of f verbatim.
func (f *DataFile) StatusView() FileStatusView {
	return FileStatusView{
		Status:       f.Status,
		RecordCount:  f.RecordCount,
		ErrorMessage: f.ErrorMessage,
	}
}

// ActivityItem is one entry of the dashboard activity feed.
type ActivityItem struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Status      FileStatus `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	RecordCount int        `json:"recordCount"`
}
