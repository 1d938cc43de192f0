package groups

import (
	"errors"

	"github.com/readinglog/readlog/pkg/readlog/models"
	"gorm.io/gorm"
)

// DeleteGroupTx deletes a group inside tx. The group is unlinked from every
// book; books left without any group become private. Memberships go with it.
func DeleteGroupTx(tx *gorm.DB, groupID uint) error {
	var bookIDs []uint
	if err := tx.Table("book_groups").Where("group_id = ?", groupID).Pluck("book_id", &bookIDs).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM book_groups WHERE group_id = ?", groupID).Error; err != nil {
		return err
	}
	if len(bookIDs) > 0 {
		if err := tx.Model(&models.Book{}).
			Where("id IN ? AND id NOT IN (?)", bookIDs, tx.Table("book_groups").Select("book_id")).
			Update("visibility", models.VisibilityPrivate).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Group{}, groupID).Error
}

// ReleaseUserTx removes all of a user's memberships inside tx, used when the
// account is deleted. Where the user is a group's only admin, the
// longest-standing remaining member is promoted; a group the user was the
// last member of is deleted.
func ReleaseUserTx(tx *gorm.DB, userID uint) error {
	var memberships []models.GroupMembership
	if err := tx.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return err
	}

	for _, m := range memberships {
		if _, err := promoteSuccessorIfSole(tx, m, userID); err != nil {
			return err
		}
	}
	return tx.Where("user_id = ?", userID).Delete(&models.GroupMembership{}).Error
}

// promoteSuccessorIfSole keeps group m alive without userID. It returns the
// promoted membership, or nil when none was needed or the group was deleted.
func promoteSuccessorIfSole(tx *gorm.DB, m models.GroupMembership, userID uint) (*models.GroupMembership, error) {
	var others int64
	if err := tx.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id <> ?", m.GroupID, userID).
		Count(&others).Error; err != nil {
		return nil, err
	}
	if others == 0 {
		return nil, DeleteGroupTx(tx, m.GroupID)
	}
	if m.Role != models.GroupRoleAdmin {
		return nil, nil
	}
	sole, err := soleAdmin(tx, m.GroupID, userID)
	if err != nil || !sole {
		return nil, err
	}
	return promoteSuccessor(tx, m.GroupID, userID)
}

// soleAdmin reports whether no member other than userID is an admin.
func soleAdmin(tx *gorm.DB, groupID, userID uint) (bool, error) {
	var admins int64
	err := tx.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id <> ? AND role = ?", groupID, userID, models.GroupRoleAdmin).
		Count(&admins).Error
	return admins == 0, err
}

// promoteSuccessor promotes the earliest-joined member other than userID.
func promoteSuccessor(tx *gorm.DB, groupID, userID uint) (*models.GroupMembership, error) {
	var next models.GroupMembership
	err := tx.Where("group_id = ? AND user_id <> ?", groupID, userID).
		Order("created_at ASC, id ASC").
		First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSoleAdmin
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&next).Update("role", models.GroupRoleAdmin).Error; err != nil {
		return nil, err
	}
	return &next, nil
}
