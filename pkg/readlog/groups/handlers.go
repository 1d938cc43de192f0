package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
)

// Handler handles group-related requests
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new groups handler
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// CreateGroupRequest represents the request to create or rename a group
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// JoinGroupRequest carries an invite code
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code" binding:"required,max=64"`
}

// List returns all groups the current user is a member of
// @Summary List groups
// @Tags groups
// @Produce json
// @Success 200 {array} GroupView
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	groups, err := h.svc.ListMine(c.Request.Context(), actor)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// Create creates a new group and adds the creator as admin
// @Summary Create a group
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupView
// @Failure 400 {object} apperr.Error "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	group, err := h.svc.Create(c.Request.Context(), actor, req.Name)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// Join adds the current user to the group matching an invite code
// @Summary Join a group
// @Tags groups
// @Accept json
// @Produce json
// @Param request body JoinGroupRequest true "Invite code"
// @Success 200 {object} GroupView
// @Failure 404 {object} apperr.Error "Unknown invite code"
// @Failure 409 {object} apperr.Error "Already a member"
// @Failure 429 {object} apperr.Error "Too many attempts"
// @Security BearerAuth
// @Router /groups/join [post]
func (h *Handler) Join(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req JoinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	group, err := h.svc.JoinByInviteCode(c.Request.Context(), actor, req.InviteCode)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// Get returns a specific group
// @Summary Get a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupView
// @Failure 404 {object} apperr.Error "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	group, err := h.svc.Get(c.Request.Context(), actor, groupID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// Update renames a group (admin only)
func (h *Handler) Update(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	group, err := h.svc.Rename(c.Request.Context(), actor, groupID, req.Name)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// RegenerateInviteCode issues a fresh invite code (admin only)
func (h *Handler) RegenerateInviteCode(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	group, err := h.svc.RegenerateInviteCode(c.Request.Context(), actor, groupID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// Leave removes the current user from a group
func (h *Handler) Leave(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), actor, groupID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}

// Delete deletes a group (admin only)
// @Summary Delete a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Failure 403 {object} apperr.Error "Admin access required"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, groupID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// actorAndGroup resolves the actor and the :id parameter, responding on failure.
func (h *Handler) actorAndGroup(c *gin.Context) (*auth.Actor, uint, bool) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	groupID, err := validation.ParamID(c, "id", "group")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	return actor, groupID, true
}

// RegisterRoutes registers group routes. joinLimit, if given, runs before
// the join handler.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, joinLimit ...gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/join", append(joinLimit, h.Join)...)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/invite-code", h.RegenerateInviteCode)
	rg.POST("/:id/leave", h.Leave)
}
