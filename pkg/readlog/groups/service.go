// Package groups manages reading groups and their memberships.
//
// A group is created by a user who becomes its admin. Other users join with
// the group's invite code. Admins may rename the group, rotate the code,
// promote and remove members, and delete the group; deletion reverts books
// shared only to that group back to private.
package groups

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNameLength  = 100
	inviteAttempts = 5
)

// Errors returned by the membership operations.
var (
	ErrAlreadyMember     = apperr.Conflict("You are already a member of this group")
	ErrInvalidInviteCode = apperr.NotFound("No group matches this invite code")
	ErrSoleAdmin         = apperr.Forbidden("You are the only admin; promote another member or delete the group first")
)

// GroupView is a group as seen by one of its members.
type GroupView struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	InviteCode  string           `json:"invite_code,omitempty"` // admins only
	Role        models.GroupRole `json:"role"`
	MemberCount int64            `json:"member_count"`
	JoinedAt    time.Time        `json:"joined_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

// MemberView is one row of a group's member list.
type MemberView struct {
	UserID   uint             `json:"user_id"`
	Nickname string           `json:"nickname"`
	Role     models.GroupRole `json:"role"`
	JoinedAt time.Time        `json:"joined_at"`
}

// Service implements the group membership operations.
type Service struct {
	db          *gorm.DB
	access      *access.Resolver
	inviteLen   int
	soleAdmin   config.SoleAdminLeave
	log         *zap.Logger
	newInviteFn func(int) (string, error)
}

// NewService creates a group service.
func NewService(db *gorm.DB, resolver *access.Resolver, inviteLength int, log *zap.Logger) *Service {
	return &Service{
		db:          db,
		access:      resolver,
		inviteLen:   inviteLength,
		soleAdmin:   resolver.Policy().SoleAdminLeave,
		log:         log,
		newInviteFn: NewInviteCode,
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidInput("Group name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", apperr.InvalidInputf("Group name must not exceed %d characters", maxNameLength)
	}
	return name, nil
}

// uniqueInviteCode draws codes until one is unused.
func (s *Service) uniqueInviteCode(tx *gorm.DB) (string, error) {
	for i := 0; i < inviteAttempts; i++ {
		code, err := s.newInviteFn(s.inviteLen)
		if err != nil {
			return "", apperr.Internal(err)
		}
		var n int64
		if err := tx.Model(&models.Group{}).Where("invite_code = ?", code).Count(&n).Error; err != nil {
			return "", apperr.FromStore(err, "")
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", apperr.Unavailable("Could not allocate an invite code, please retry")
}

// Create creates a group with the actor as its admin.
func (s *Service) Create(ctx context.Context, actor *auth.Actor, name string) (*GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	var group models.Group
	var membership models.GroupMembership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.uniqueInviteCode(tx)
		if err != nil {
			return err
		}
		group = models.Group{Name: name, InviteCode: code, CreatedByID: actor.ID}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership = models.GroupMembership{UserID: actor.ID, GroupID: group.ID, Role: models.GroupRoleAdmin}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("group created", zap.Uint("group_id", group.ID), zap.Uint("user_id", actor.ID))
	return view(group, membership, 1), nil
}

// JoinByInviteCode adds the actor to the group holding code as a member.
// The lookup and the insert run in one transaction.
func (s *Service) JoinByInviteCode(ctx context.Context, actor *auth.Actor, code string) (*GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	code, ok := NormalizeInviteCode(code)
	if !ok {
		return nil, apperr.InvalidInput("Invite code is malformed")
	}

	var group models.Group
	var membership models.GroupMembership
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invite_code = ?", code).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidInviteCode
			}
			return err
		}
		existing, err := s.access.With(tx).Membership(ctx, actor.ID, group.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyMember
		}
		membership = models.GroupMembership{UserID: actor.ID, GroupID: group.ID, Role: models.GroupRoleMember}
		if err := tx.Create(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return err
		}
		return tx.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&count).Error
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("member joined", zap.Uint("group_id", group.ID), zap.Uint("user_id", actor.ID))
	return view(group, membership, count), nil
}

// ListMine returns the actor's groups, most recently joined first.
func (s *Service) ListMine(ctx context.Context, actor *auth.Actor) ([]GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var memberships []models.GroupMembership
	if err := db.Preload("Group").
		Where("user_id = ?", actor.ID).
		Order("created_at DESC, id DESC").
		Find(&memberships).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	ids := make([]uint, len(memberships))
	for i, m := range memberships {
		ids[i] = m.GroupID
	}
	counts, err := memberCounts(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]GroupView, len(memberships))
	for i, m := range memberships {
		out[i] = *view(m.Group, m, counts[m.GroupID])
	}
	return out, nil
}

// Get returns a group the actor belongs to.
func (s *Service) Get(ctx context.Context, actor *auth.Actor, groupID uint) (*GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	m, err := s.access.RequireMember(ctx, actor.ID, groupID)
	if err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx), *m)
}

func (s *Service) load(db *gorm.DB, m models.GroupMembership) (*GroupView, error) {
	var group models.Group
	if err := db.First(&group, m.GroupID).Error; err != nil {
		return nil, apperr.FromStore(err, "Group not found")
	}
	counts, err := memberCounts(db, []uint{group.ID})
	if err != nil {
		return nil, err
	}
	return view(group, m, counts[group.ID]), nil
}

// Members lists a group's members in join order.
func (s *Service) Members(ctx context.Context, actor *auth.Actor, groupID uint) ([]MemberView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if _, err := s.access.RequireMember(ctx, actor.ID, groupID); err != nil {
		return nil, err
	}

	var memberships []models.GroupMembership
	if err := s.db.WithContext(ctx).Preload("User").
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&memberships).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	out := make([]MemberView, len(memberships))
	for i, m := range memberships {
		out[i] = MemberView{UserID: m.UserID, Nickname: m.User.Nickname, Role: m.Role, JoinedAt: m.CreatedAt}
	}
	return out, nil
}

// Rename changes a group's name (admin only).
func (s *Service) Rename(ctx context.Context, actor *auth.Actor, groupID uint, name string) (*GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAdmin(ctx, actor.ID, groupID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Group{}).Where("id = ?", groupID).Update("name", name).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return s.Get(ctx, actor, groupID)
}

// RegenerateInviteCode replaces a group's invite code (admin only).
// The previous code stops working immediately.
func (s *Service) RegenerateInviteCode(ctx context.Context, actor *auth.Actor, groupID uint) (*GroupView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if err := s.access.RequireAdmin(ctx, actor.ID, groupID); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.uniqueInviteCode(tx)
		if err != nil {
			return err
		}
		return tx.Model(&models.Group{}).Where("id = ?", groupID).Update("invite_code", code).Error
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("invite code regenerated", zap.Uint("group_id", groupID), zap.Uint("user_id", actor.ID))
	return s.Get(ctx, actor, groupID)
}

// Promote makes target an admin of the group. Promoting an admin is a no-op.
func (s *Service) Promote(ctx context.Context, actor *auth.Actor, groupID, targetID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}
	if err := s.access.RequireAdmin(ctx, actor.ID, groupID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, targetID).
		Update("role", models.GroupRoleAdmin)
	if res.Error != nil {
		return apperr.FromStore(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Member not found")
	}

	s.log.Info("member promoted", zap.Uint("group_id", groupID), zap.Uint("target_id", targetID), zap.Uint("user_id", actor.ID))
	return nil
}

// Remove deletes another member's membership (admin only).
// Admins leave through Leave, not Remove.
func (s *Service) Remove(ctx context.Context, actor *auth.Actor, groupID, targetID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}
	if err := s.access.RequireAdmin(ctx, actor.ID, groupID); err != nil {
		return err
	}
	if targetID == actor.ID {
		return apperr.InvalidInput("Use leave to remove yourself from a group")
	}

	res := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, targetID).
		Delete(&models.GroupMembership{})
	if res.Error != nil {
		return apperr.FromStore(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Member not found")
	}

	s.log.Info("member removed", zap.Uint("group_id", groupID), zap.Uint("target_id", targetID), zap.Uint("user_id", actor.ID))
	return nil
}

// Leave removes the actor's own membership. When the actor is the last
// member the group is deleted. When the actor is the only admin but others
// remain, the configured sole-admin policy applies.
func (s *Service) Leave(ctx context.Context, actor *auth.Actor, groupID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}

	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.access.With(tx).RequireMember(ctx, actor.ID, groupID)
		if err != nil {
			return err
		}

		var others int64
		if err := tx.Model(&models.GroupMembership{}).
			Where("group_id = ? AND user_id <> ?", groupID, actor.ID).
			Count(&others).Error; err != nil {
			return err
		}
		if others == 0 {
			deleted = true
			return DeleteGroupTx(tx, groupID)
		}

		if m.Role == models.GroupRoleAdmin {
			sole, err := soleAdmin(tx, groupID, actor.ID)
			if err != nil {
				return err
			}
			if sole {
				switch s.soleAdmin {
				case config.SoleAdminPromote:
					if _, err := promoteSuccessor(tx, groupID, actor.ID); err != nil {
						return err
					}
				case config.SoleAdminAllow:
				default:
					return ErrSoleAdmin
				}
			}
		}
		return tx.Delete(m).Error
	})
	if err != nil {
		return apperr.FromStore(err, "")
	}

	s.log.Info("member left", zap.Uint("group_id", groupID), zap.Uint("user_id", actor.ID), zap.Bool("group_deleted", deleted))
	return nil
}

// Delete removes a group and its memberships (admin only).
func (s *Service) Delete(ctx context.Context, actor *auth.Actor, groupID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}
	if err := s.access.RequireAdmin(ctx, actor.ID, groupID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return DeleteGroupTx(tx, groupID)
	}); err != nil {
		return apperr.FromStore(err, "")
	}

	s.log.Info("group deleted", zap.Uint("group_id", groupID), zap.Uint("user_id", actor.ID))
	return nil
}

func view(g models.Group, m models.GroupMembership, count int64) *GroupView {
	v := &GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Role:        m.Role,
		MemberCount: count,
		JoinedAt:    m.CreatedAt,
		CreatedAt:   g.CreatedAt,
	}
	if m.Role == models.GroupRoleAdmin {
		v.InviteCode = g.InviteCode
	}
	return v
}

func memberCounts(db *gorm.DB, groupIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(groupIDs))
	if len(groupIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		GroupID uint
		Count   int64
	}
	if err := db.Model(&models.GroupMembership{}).
		Select("group_id, COUNT(*) AS count").
		Where("group_id IN ?", groupIDs).
		Group("group_id").
		Scan(&rows).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	for _, r := range rows {
		counts[r.GroupID] = r.Count
	}
	return counts, nil
}
