package books

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
)

// Handler handles book requests
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new books handler
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ListParams are the query parameters of the list endpoints
type ListParams struct {
	Scope  string `form:"scope" binding:"omitempty,oneof=mine shared"`
	Q      string `form:"q" binding:"max=200"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// List returns the current user's books or the books shared with them
// @Summary List books
// @Tags books
// @Produce json
// @Param scope query string false "mine (default) or shared"
// @Param q query string false "Title or author filter"
// @Success 200 {object} Page
// @Security BearerAuth
// @Router /books [get]
func (h *Handler) List(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	page, err := h.svc.List(c.Request.Context(), actor, ListQuery{
		Scope:  Scope(params.Scope),
		Query:  params.Q,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListGroup returns the books shared to one group
func (h *Handler) ListGroup(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	groupID, err := validation.ParamID(c, "id", "group")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	page, err := h.svc.List(c.Request.Context(), actor, ListQuery{
		Scope:   ScopeGroup,
		GroupID: groupID,
		Query:   params.Q,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Create records a new book
// @Summary Create a book
// @Tags books
// @Accept json
// @Produce json
// @Param request body Fields true "Book details"
// @Success 201 {object} BookView
// @Failure 400 {object} apperr.Error "Validation error"
// @Failure 403 {object} apperr.Error "Not a member of a referenced group"
// @Security BearerAuth
// @Router /books [post]
func (h *Handler) Create(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var req Fields
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	book, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

// Get returns a single book
func (h *Handler) Get(c *gin.Context) {
	actor, bookID, ok := h.actorAndBook(c)
	if !ok {
		return
	}
	book, err := h.svc.Get(c.Request.Context(), actor, bookID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// Update edits a book (owner only)
func (h *Handler) Update(c *gin.Context) {
	actor, bookID, ok := h.actorAndBook(c)
	if !ok {
		return
	}
	var req Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}
	book, err := h.svc.Update(c.Request.Context(), actor, bookID, req)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// Delete removes a book
func (h *Handler) Delete(c *gin.Context) {
	actor, bookID, ok := h.actorAndBook(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, bookID); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book deleted"})
}

func (h *Handler) actorAndBook(c *gin.Context) (*auth.Actor, uint, bool) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	bookID, err := validation.ParamID(c, "id", "book")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return nil, 0, false
	}
	return actor, bookID, true
}

// RegisterRoutes registers book routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

// RegisterGroupRoutes registers the per-group book listing on the groups router
func (h *Handler) RegisterGroupRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/books", h.ListGroup)
}
