// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/readinglog/readlog/pkg/readlog/database"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with the given nickname. The password hash is a
// placeholder; tests that log in register through the auth handlers instead.
func CreateUser(t *testing.T, db *gorm.DB, nickname string) *models.User {
	t.Helper()
	u := &models.User{
		Email:        fmt.Sprintf("%s@example.com", nickname),
		PasswordHash: "x",
		Nickname:     nickname,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateGroup inserts a group with a fixed invite code and makes creator its admin.
func CreateGroup(t *testing.T, db *gorm.DB, creator *models.User, name, code string) *models.Group {
	t.Helper()
	g := &models.Group{Name: name, InviteCode: code, CreatedByID: creator.ID}
	require.NoError(t, db.Create(g).Error)
	AddMember(t, db, g, creator, models.GroupRoleAdmin)
	return g
}

// AddMember inserts a membership row.
func AddMember(t *testing.T, db *gorm.DB, g *models.Group, u *models.User, role models.GroupRole) {
	t.Helper()
	require.NoError(t, db.Create(&models.GroupMembership{UserID: u.ID, GroupID: g.ID, Role: role}).Error)
}

// CreateBook inserts a book owned by owner and shared to groups.
// With no groups the book is private.
func CreateBook(t *testing.T, db *gorm.DB, owner *models.User, title string, groups ...*models.Group) *models.Book {
	t.Helper()
	b := &models.Book{
		OwnerID:    owner.ID,
		AddedBy:    owner.Nickname,
		Title:      title,
		Author:     "Author of " + title,
		Visibility: models.VisibilityPrivate,
	}
	if len(groups) > 0 {
		b.Visibility = models.VisibilityGroup
		for _, g := range groups {
			b.Groups = append(b.Groups, *g)
		}
	}
	require.NoError(t, db.Omit("Groups.*").Create(b).Error)
	return b
}
