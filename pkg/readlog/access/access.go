// Package access decides what an actor may do with books, comments and
// groups. Every read and write in the book and social services goes
// through a Resolver, which consults group memberships in the store.
package access

import (
	"context"
	"errors"

	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"gorm.io/gorm"
)

// BookAccess is the set of actions an actor may take on one book.
type BookAccess struct {
	View    bool `json:"can_view"`
	Edit    bool `json:"can_edit"`
	Delete  bool `json:"can_delete"`
	Comment bool `json:"can_comment"`
	Like    bool `json:"can_like"`
}

// Owner reports whether the access level is the owner's.
func (a BookAccess) Owner() bool {
	return a.Edit
}

// Resolver evaluates access decisions against group memberships.
type Resolver struct {
	db     *gorm.DB
	policy config.Policy
}

// NewResolver creates a resolver applying policy.
func NewResolver(db *gorm.DB, policy config.Policy) *Resolver {
	return &Resolver{db: db, policy: policy}
}

// With returns a resolver reading through tx, for checks made inside a transaction.
func (r *Resolver) With(tx *gorm.DB) *Resolver {
	return &Resolver{db: tx, policy: r.policy}
}

// Policy returns the configured policy.
func (r *Resolver) Policy() config.Policy {
	return r.policy
}

// Decide computes access for actorID on book. roles holds the actor's role
// in each group the book is shared to; groups without a membership are absent.
func (r *Resolver) Decide(actorID uint, book *models.Book, roles map[uint]models.GroupRole) BookAccess {
	if actorID == 0 || book == nil {
		return BookAccess{}
	}
	if book.OwnerID == actorID {
		return BookAccess{
			View:    true,
			Edit:    true,
			Delete:  true,
			Comment: book.Visibility == models.VisibilityGroup,
			Like:    true,
		}
	}
	if book.Visibility != models.VisibilityGroup || len(roles) == 0 {
		return BookAccess{}
	}

	acc := BookAccess{View: true, Comment: true, Like: true}
	if r.policy.AdminCanDeleteBooks {
		for _, role := range roles {
			if role == models.GroupRoleAdmin {
				acc.Delete = true
				break
			}
		}
	}
	return acc
}

// Book resolves access for actorID on book. book.Groups must be loaded.
func (r *Resolver) Book(ctx context.Context, actorID uint, book *models.Book) (BookAccess, error) {
	if book.OwnerID == actorID || book.Visibility != models.VisibilityGroup {
		return r.Decide(actorID, book, nil), nil
	}
	roles, err := r.Roles(ctx, actorID, book.GroupIDs())
	if err != nil {
		return BookAccess{}, err
	}
	return r.Decide(actorID, book, roles), nil
}

// LoadBook fetches a book with its groups and resolves access. A book the
// actor may not view is reported as NotFound so its existence does not leak.
func (r *Resolver) LoadBook(ctx context.Context, actorID, bookID uint) (*models.Book, BookAccess, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).Preload("Groups").First(&book, bookID).Error; err != nil {
		return nil, BookAccess{}, apperr.FromStore(err, "Book not found")
	}
	acc, err := r.Book(ctx, actorID, &book)
	if err != nil {
		return nil, BookAccess{}, err
	}
	if !acc.View {
		return nil, BookAccess{}, apperr.NotFound("Book not found")
	}
	return &book, acc, nil
}

// Roles returns the actor's role in each of groupIDs it belongs to.
func (r *Resolver) Roles(ctx context.Context, userID uint, groupIDs []uint) (map[uint]models.GroupRole, error) {
	roles := make(map[uint]models.GroupRole)
	if userID == 0 || len(groupIDs) == 0 {
		return roles, nil
	}
	var memberships []models.GroupMembership
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id IN ?", userID, groupIDs).
		Find(&memberships).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	for _, m := range memberships {
		roles[m.GroupID] = m.Role
	}
	return roles, nil
}

// Membership returns the user's membership row in a group, or nil.
func (r *Resolver) Membership(ctx context.Context, userID, groupID uint) (*models.GroupMembership, error) {
	var m models.GroupMembership
	err := r.db.WithContext(ctx).Where("user_id = ? AND group_id = ?", userID, groupID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return &m, nil
}

// RequireMember returns the membership, or NotFound for non-members so
// that groups stay invisible to outsiders.
func (r *Resolver) RequireMember(ctx context.Context, userID, groupID uint) (*models.GroupMembership, error) {
	m, err := r.Membership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("Group not found")
	}
	return m, nil
}

// RequireAdmin returns Forbidden unless the user is an admin of the group.
func (r *Resolver) RequireAdmin(ctx context.Context, userID, groupID uint) error {
	m, err := r.Membership(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if m == nil || m.Role != models.GroupRoleAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

// RequireMemberOfAll returns Forbidden unless the user belongs to every group.
// Unknown group ids count as groups the user does not belong to.
func (r *Resolver) RequireMemberOfAll(ctx context.Context, userID uint, groupIDs []uint) error {
	roles, err := r.Roles(ctx, userID, groupIDs)
	if err != nil {
		return err
	}
	for _, id := range groupIDs {
		if _, ok := roles[id]; !ok {
			return apperr.Forbidden("You can only share books to groups you belong to")
		}
	}
	return nil
}

// CanDeleteComment reports whether actorID may delete comment, which
// belongs to book (with groups loaded).
func (r *Resolver) CanDeleteComment(ctx context.Context, actorID uint, comment *models.Comment, book *models.Book) (bool, error) {
	if actorID != 0 && comment.UserID == actorID {
		return true, nil
	}
	if !r.policy.AdminCanDeleteComments || book == nil || book.Visibility != models.VisibilityGroup {
		return false, nil
	}
	roles, err := r.Roles(ctx, actorID, book.GroupIDs())
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role == models.GroupRoleAdmin {
			return true, nil
		}
	}
	return false, nil
}
