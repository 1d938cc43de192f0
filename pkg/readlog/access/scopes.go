package access

import (
	"github.com/readinglog/readlog/pkg/readlog/models"
	"gorm.io/gorm"
)

// memberGroupIDs is a subquery selecting the ids of the user's groups.
func (r *Resolver) memberGroupIDs(userID uint) *gorm.DB {
	return r.db.Model(&models.GroupMembership{}).Select("group_id").Where("user_id = ?", userID)
}

// sharedBookIDs is a subquery selecting ids of books linked to any of groupIDs,
// which may itself be a subquery.
func (r *Resolver) sharedBookIDs(groupIDs interface{}) *gorm.DB {
	return r.db.Table("book_groups").Select("book_id").Where("group_id IN (?)", groupIDs)
}

// Visible restricts a books query to rows actorID may view.
// It mirrors Decide: own books, plus group-visible books shared to one of
// the actor's groups.
func (r *Resolver) Visible(actorID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("books.owner_id = ? OR (books.visibility = ? AND books.id IN (?))",
			actorID, models.VisibilityGroup, r.sharedBookIDs(r.memberGroupIDs(actorID)))
	}
}

// SharedWithMe restricts a books query to group-visible books shared to
// any of actorID's groups, including the actor's own.
func (r *Resolver) SharedWithMe(actorID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("books.visibility = ? AND books.id IN (?)",
			models.VisibilityGroup, r.sharedBookIDs(r.memberGroupIDs(actorID)))
	}
}

// SharedToGroup restricts a books query to group-visible books shared to groupID.
// Callers must check the actor's membership first.
func (r *Resolver) SharedToGroup(groupID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("books.visibility = ? AND books.id IN (?)",
			models.VisibilityGroup, r.sharedBookIDs([]uint{groupID}))
	}
}

// OwnedBy restricts a books query to actorID's own books.
func OwnedBy(actorID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("books.owner_id = ?", actorID)
	}
}
