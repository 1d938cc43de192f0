package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/validation"
)

// ListMembers returns all members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	members, err := h.svc.Members(c.Request.Context(), actor, groupID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// PromoteMember makes a member an admin (admin only)
func (h *Handler) PromoteMember(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	targetID, err := validation.ParamID(c, "userId", "user")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if err := h.svc.Promote(c.Request.Context(), actor, groupID, targetID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member promoted"})
}

// RemoveMember removes a member from a group (admin only)
func (h *Handler) RemoveMember(c *gin.Context) {
	actor, groupID, ok := h.actorAndGroup(c)
	if !ok {
		return
	}
	targetID, err := validation.ParamID(c, "userId", "user")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if err := h.svc.Remove(c.Request.Context(), actor, groupID, targetID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// RegisterMemberRoutes registers member management routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members/:userId/promote", h.PromoteMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}
