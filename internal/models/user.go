// Package models contains the domain types shared by the store, the
// ingestion pipeline and the HTTP API.
package models

import "time"

// User is an authenticated account. Users are created on first login and
// updated on later logins; they are never deleted.
type User struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Email           string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	FirstName       string    `json:"firstName" gorm:"size:255"`
	LastName        string    `json:"lastName" gorm:"size:255"`
	ProfileImageURL string    `json:"profileImageUrl" gorm:"size:1024"`
	PasswordHash    []byte    `json:"-" gorm:"not null"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }
