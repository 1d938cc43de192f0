package models

import (
	"time"
)

// Group is a reading circle that members join with its invite code
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	InviteCode  string    `gorm:"uniqueIndex;not null;size:32" json:"invite_code"`
	CreatedByID uint      `gorm:"not null;index" json:"created_by_id"`

	// Relationships
	Members []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Books   []Book            `gorm:"many2many:book_groups;" json:"books,omitempty"`
}
