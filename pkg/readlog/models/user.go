package models

import (
	"time"
)

// User represents a registered reader
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Nickname     string    `gorm:"not null" json:"nickname"` // Display name, editable by the owner

	// Relationships
	GroupMemberships []GroupMembership `gorm:"foreignKey:UserID" json:"group_memberships,omitempty"`
	APIKeys          []APIKey          `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
}
