package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler handles authentication requests
type Handler struct {
	db     *gorm.DB
	tokens *Tokens
	log    *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, tokens *Tokens, log *zap.Logger) *Handler {
	return &Handler{db: db, tokens: tokens, log: log}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=1024"`
	Nickname string `json:"nickname" binding:"required,max=50"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest re-authenticates with the current password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=1024"`
}

// ChangeEmailRequest re-authenticates with the account password
type ChangeEmailRequest struct {
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

func userToResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Nickname: u.Nickname}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and returns a session token
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		apperr.Respond(c, h.log, apperr.InvalidInput("Nickname must not be empty"))
		return
	}
	email := normalizeEmail(req.Email)

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		apperr.Respond(c, h.log, apperr.Internal(err))
		return
	}

	user := models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Nickname:     nickname,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			apperr.Respond(c, h.log, apperr.Conflict("Email already registered"))
			return
		}
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Email)
	if err != nil {
		apperr.Respond(c, h.log, apperr.Internal(err))
		return
	}

	h.log.Info("user registered", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: userToResponse(user)})
}

// Login authenticates with email and password
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, h.log, apperr.Unauthenticated("Invalid email or password"))
			return
		}
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		apperr.Respond(c, h.log, apperr.Unauthenticated("Invalid email or password"))
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Email)
	if err != nil {
		apperr.Respond(c, h.log, apperr.Internal(err))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: userToResponse(user)})
}

// Me returns the current authenticated user
func (h *Handler) Me(c *gin.Context) {
	actor, err := CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{ID: actor.ID, Email: actor.Email, Nickname: actor.Nickname})
}

// Logout is a no-op on the server; clients drop their token
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// reauthenticate loads the actor's row and checks password against it
func (h *Handler) reauthenticate(c *gin.Context, password string) (*models.User, error) {
	actor, err := CurrentActor(c)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, actor.ID).Error; err != nil {
		return nil, apperr.FromStore(err, "User not found")
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, apperr.Unauthenticated("Password is not correct")
	}
	return &user, nil
}

// ChangePassword replaces the password after re-authentication
func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}

	user, err := h.reauthenticate(c, req.CurrentPassword)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		apperr.Respond(c, h.log, apperr.Internal(err))
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(user).Update("password_hash", hash).Error; err != nil {
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// ChangeEmail replaces the login email after re-authentication
func (h *Handler) ChangeEmail(c *gin.Context) {
	var req ChangeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}

	user, err := h.reauthenticate(c, req.Password)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	email := normalizeEmail(req.Email)
	if err := h.db.WithContext(c.Request.Context()).Model(user).Update("email", email).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			apperr.Respond(c, h.log, apperr.Conflict("Email already registered"))
			return
		}
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	user.Email = email
	c.JSON(http.StatusOK, userToResponse(*user))
}

// RegisterRoutes registers auth routes. authn authenticates the protected ones.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authn ...gin.HandlerFunc) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)

	protected := rg.Group("", authn...)
	protected.GET("/me", h.Me)
	protected.PUT("/password", h.ChangePassword)
	protected.PUT("/email", h.ChangeEmail)
}
