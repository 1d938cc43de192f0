// Package profile lets readers rename themselves and delete their account.
package profile

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/books"
	"github.com/readinglog/readlog/pkg/readlog/groups"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNicknameLength = 50

// Service implements profile operations.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewService creates a profile service.
func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// UpdateNickname changes the actor's display name. Books keep the
// nickname they were added under.
func (s *Service) UpdateNickname(ctx context.Context, actor *auth.Actor, nickname string) (*auth.Actor, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, apperr.InvalidInput("Nickname must not be empty")
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLength {
		return nil, apperr.InvalidInputf("Nickname must not exceed %d characters", maxNicknameLength)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", actor.ID).Update("nickname", nickname).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	updated := *actor
	updated.Nickname = nickname
	return &updated, nil
}

// DeleteAccount removes the actor and everything they own after checking
// their password. Groups they solely administer pass to the
// longest-standing member, or are deleted when nobody else remains.
func (s *Service) DeleteAccount(ctx context.Context, actor *auth.Actor, password string) error {
	if err := auth.Require(actor); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, actor.ID).Error; err != nil {
			return err
		}
		if !auth.CheckPassword(password, user.PasswordHash) {
			return apperr.Unauthenticated("Password is incorrect")
		}

		var bookIDs []uint
		if err := tx.Model(&models.Book{}).Where("owner_id = ?", actor.ID).Pluck("id", &bookIDs).Error; err != nil {
			return err
		}
		if err := books.PurgeTx(tx, bookIDs); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", actor.ID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", actor.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := groups.ReleaseUserTx(tx, actor.ID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", actor.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return apperr.FromStore(err, "Account not found")
	}

	s.log.Info("account deleted", zap.Uint("user_id", actor.ID))
	return nil
}

// Handler handles profile requests
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new profile handler
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// NicknameRequest changes the display name
type NicknameRequest struct {
	Nickname string `json:"nickname" binding:"required,max=50"`
}

// DeleteAccountRequest confirms deletion with the account password
type DeleteAccountRequest struct {
	Password string `json:"password" binding:"required"`
}

// UpdateNickname changes the current user's nickname
func (h *Handler) UpdateNickname(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req NicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	updated, err := h.svc.UpdateNickname(c.Request.Context(), actor, req.Nickname)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, auth.UserResponse{ID: updated.ID, Email: updated.Email, Nickname: updated.Nickname})
}

// DeleteAccount deletes the current user's account
func (h *Handler) DeleteAccount(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), actor, req.Password); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

// RegisterRoutes registers profile routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PUT("/nickname", h.UpdateNickname)
	rg.DELETE("", h.DeleteAccount)
}
