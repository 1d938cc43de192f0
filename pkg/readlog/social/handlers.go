package social

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
)

// Handler handles like and comment requests
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new social handler
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// CommentRequest is the body of a new comment
type CommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// CountsRequest lists the books to aggregate
type CountsRequest struct {
	BookIDs []uint `json:"book_ids" binding:"required,max=200,dive,gt=0"`
}

// ToggleLike likes or unlikes a book
// @Summary Toggle like
// @Tags social
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} LikeState
// @Failure 403 {object} apperr.Error "No access to the book"
// @Security BearerAuth
// @Router /books/{id}/like [post]
func (h *Handler) ToggleLike(c *gin.Context) {
	actor, bookID, ok := h.actorAndID(c, "book")
	if !ok {
		return
	}
	state, err := h.svc.ToggleLike(c.Request.Context(), actor, bookID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListComments returns a book's comments, oldest first
func (h *Handler) ListComments(c *gin.Context) {
	actor, bookID, ok := h.actorAndID(c, "book")
	if !ok {
		return
	}
	comments, err := h.svc.ListComments(c.Request.Context(), actor, bookID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// AddComment comments on a shared book
func (h *Handler) AddComment(c *gin.Context) {
	actor, bookID, ok := h.actorAndID(c, "book")
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	comment, err := h.svc.AddComment(c.Request.Context(), actor, bookID, req.Content)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment removes a comment
func (h *Handler) DeleteComment(c *gin.Context) {
	actor, commentID, ok := h.actorAndID(c, "comment")
	if !ok {
		return
	}
	if err := h.svc.DeleteComment(c.Request.Context(), actor, commentID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

// Counts returns like and comment counts for several books at once
func (h *Handler) Counts(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req CountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	counts, err := h.svc.CountsFor(c.Request.Context(), actor, req.BookIDs)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) actorAndID(c *gin.Context, what string) (*auth.Actor, uint, bool) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	id, err := validation.ParamID(c, "id", what)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	return actor, id, true
}

// RegisterBookRoutes registers like and comment routes on the books router
func (h *Handler) RegisterBookRoutes(rg *gin.RouterGroup) {
	rg.POST("/counts", h.Counts)
	rg.POST("/:id/like", h.ToggleLike)
	rg.GET("/:id/comments", h.ListComments)
	rg.POST("/:id/comments", h.AddComment)
}

// RegisterCommentRoutes registers routes addressed by comment id
func (h *Handler) RegisterCommentRoutes(rg *gin.RouterGroup) {
	rg.DELETE("/:id", h.DeleteComment)
}
