// Package apikeys issues personal access tokens for scripted clients.
// Keys are shown once at creation and stored only as a SHA-256 hash.
package apikeys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of the generated API key in hex characters
	KeyLength = 64
	// KeyPrefixLength is the number of characters to store as prefix for identification
	KeyPrefixLength = 8

	keyAlphabet = "0123456789abcdef"
)

// Handler handles API key requests
type Handler struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// APIKeyResponse represents an API key in responses
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Description string `json:"description" binding:"max=200"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// generateAPIKey generates a new random API key
func generateAPIKey() (string, error) {
	return gonanoid.Generate(keyAlphabet, KeyLength)
}

// hashAPIKey creates a SHA-256 hash of the API key
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Create creates a new API key for the authenticated user
func (h *Handler) Create(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	var req CreateAPIKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, h.log, validation.FromBinding(err))
			return
		}
	}

	key, err := generateAPIKey()
	if err != nil {
		apperr.Respond(c, h.log, apperr.Internal(err))
		return
	}

	apiKey := models.APIKey{
		UserID:      actor.ID,
		KeyHash:     hashAPIKey(key),
		KeyPrefix:   key[:KeyPrefixLength],
		Description: strings.TrimSpace(req.Description),
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&apiKey).Error; err != nil {
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	h.log.Info("api key created", zap.Uint("user_id", actor.ID), zap.String("key_prefix", apiKey.KeyPrefix))
	// Return the full key - this is the only time it's visible
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		ID:          apiKey.ID,
		Key:         key,
		KeyPrefix:   apiKey.KeyPrefix,
		Description: apiKey.Description,
		CreatedAt:   apiKey.CreatedAt,
	})
}

// List returns all API keys for the authenticated user
func (h *Handler) List(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	var apiKeys []models.APIKey
	if err := h.db.WithContext(c.Request.Context()).Where("user_id = ?", actor.ID).Order("created_at DESC").Find(&apiKeys).Error; err != nil {
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	responses := make([]APIKeyResponse, len(apiKeys))
	for i, key := range apiKeys {
		responses[i] = APIKeyResponse{
			ID:          key.ID,
			KeyPrefix:   key.KeyPrefix,
			Description: key.Description,
			LastUsedAt:  key.LastUsedAt,
			CreatedAt:   key.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, responses)
}

// Delete revokes one of the user's API keys
func (h *Handler) Delete(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	keyID, err := validation.ParamID(c, "id", "API key")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	res := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", keyID, actor.ID).Delete(&models.APIKey{})
	if res.Error != nil {
		apperr.Respond(c, h.log, apperr.FromStore(res.Error, ""))
		return
	}
	if res.RowsAffected == 0 {
		apperr.Respond(c, h.log, apperr.NotFound("API key not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// ValidateAPIKey looks up the key by its hash
func ValidateAPIKey(ctx context.Context, db *gorm.DB, key string) (*models.APIKey, error) {
	var apiKey models.APIKey
	if err := db.WithContext(ctx).Where("key_hash = ?", hashAPIKey(key)).First(&apiKey).Error; err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func UpdateLastUsed(ctx context.Context, db *gorm.DB, apiKeyID uint) error {
	return db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", apiKeyID).Update("last_used_at", time.Now()).Error
}

// CombinedAuthMiddleware authenticates via JWT or API key. Both are passed
// as "Authorization: Bearer <token>"; JWTs contain dots, API keys do not.
// Pair it with auth.ActorMiddleware to resolve the actor.
func CombinedAuthMiddleware(db *gorm.DB, tokens *auth.Tokens, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c)
		if err != nil {
			apperr.Respond(c, log, err)
			return
		}

		if strings.Contains(token, ".") {
			claims, err := tokens.Validate(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					apperr.Respond(c, log, apperr.Unauthenticated("Token has expired"))
				} else {
					apperr.Respond(c, log, apperr.Unauthenticated("Invalid token"))
				}
				return
			}
			c.Set(auth.ContextKeyUserID, claims.UserID)
			c.Next()
			return
		}

		apiKey, err := ValidateAPIKey(c.Request.Context(), db, token)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				apperr.Respond(c, log, apperr.Unauthenticated("Invalid API key"))
			} else {
				apperr.Respond(c, log, apperr.FromStore(err, ""))
			}
			return
		}
		if err := UpdateLastUsed(c.Request.Context(), db, apiKey.ID); err != nil {
			log.Warn("failed to record api key use", zap.Uint("api_key_id", apiKey.ID), zap.Error(err))
		}

		c.Set(auth.ContextKeyUserID, apiKey.UserID)
		c.Next()
	}
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}
