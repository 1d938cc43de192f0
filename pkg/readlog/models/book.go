package models

import (
	"time"
)

// Visibility controls who besides the owner may see a book
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityGroup   Visibility = "group"
)

// Valid reports whether v is a known visibility mode
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityGroup
}

// Book is a reading-log entry owned by a single user
type Book struct {
	ID              uint       `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	OwnerID         uint       `gorm:"not null;index" json:"owner_id"`
	AddedBy         string     `gorm:"not null" json:"added_by"` // Owner nickname at creation time
	Title           string     `gorm:"not null" json:"title"`
	Author          string     `gorm:"not null" json:"author"`
	PublicationDate *string    `json:"publication_date"`
	Pages           *int       `json:"pages"`
	StartDate       *string    `json:"start_date"`
	EndDate         *string    `json:"end_date"`
	Quote           *string    `json:"quote"`
	Summary         *string    `json:"summary"`
	Notes           *string    `json:"notes"`
	Visibility      Visibility `gorm:"type:varchar(20);not null;default:'private';index" json:"visibility"`

	// Relationships
	Owner  User    `gorm:"foreignKey:OwnerID" json:"-"`
	Groups []Group `gorm:"many2many:book_groups;" json:"groups,omitempty"`
}

// GroupIDs returns the ids of the groups the book is shared to
func (b *Book) GroupIDs() []uint {
	ids := make([]uint, len(b.Groups))
	for i, g := range b.Groups {
		ids[i] = g.ID
	}
	return ids
}
