package models

import (
	"time"
)

// Like is a single reader's like on a book; at most one per (book, user)
type Like struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	BookID    uint      `gorm:"not null;uniqueIndex:idx_like_book_user" json:"book_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_like_book_user;index" json:"user_id"`

	// Relationships
	Book Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName overrides the default table name
func (Like) TableName() string { return "book_likes" }

// Comment is an append-only note left on a shared book
type Comment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	BookID    uint      `gorm:"not null;index" json:"book_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Book Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName overrides the default table name
func (Comment) TableName() string { return "book_comments" }
