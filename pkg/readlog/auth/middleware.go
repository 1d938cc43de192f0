package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyActor is the key for the resolved *Actor in gin context
	ContextKeyActor = "actor"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", apperr.Unauthenticated("Authorization header required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", apperr.Unauthenticated("Invalid authorization header format")
	}
	return parts[1], nil
}

// AuthMiddleware validates JWT tokens and sets the user ID in context
func AuthMiddleware(tokens *Tokens, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := BearerToken(c)
		if err != nil {
			apperr.Respond(c, log, err)
			return
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				apperr.Respond(c, log, apperr.Unauthenticated("Token has expired"))
			} else {
				apperr.Respond(c, log, apperr.Unauthenticated("Invalid token"))
			}
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// ActorMiddleware loads the authenticated user's row and stores it as an
// *Actor. It must run after an authentication middleware has set the user ID.
// A token for a deleted account is rejected.
func ActorMiddleware(db *gorm.DB, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			apperr.Respond(c, log, apperr.ErrUnauthenticated)
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				apperr.Respond(c, log, apperr.Unauthenticated("Account no longer exists"))
				return
			}
			apperr.Respond(c, log, apperr.FromStore(err, ""))
			return
		}

		c.Set(ContextKeyActor, ActorFromUser(user))
		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}
