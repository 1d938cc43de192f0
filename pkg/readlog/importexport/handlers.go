// Package importexport moves a reader's own log in and out as JSON.
package importexport

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/books"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxImportRows bounds a single import request.
const MaxImportRows = 1000

// Handler handles import/export requests
type Handler struct {
	db    *gorm.DB
	books *books.Service
	log   *zap.Logger
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB, svc *books.Service, log *zap.Logger) *Handler {
	return &Handler{db: db, books: svc, log: log}
}

// ExportBook is one book in the export format
type ExportBook struct {
	Title           string            `json:"title"`
	Author          string            `json:"author"`
	PublicationDate string            `json:"publication_date,omitempty"`
	Pages           int               `json:"pages,omitempty"`
	StartDate       string            `json:"start_date,omitempty"`
	EndDate         string            `json:"end_date,omitempty"`
	Quote           string            `json:"quote,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Visibility      models.Visibility `json:"visibility,omitempty"`
	Groups          []string          `json:"groups,omitempty"`
	Time            string            `json:"time,omitempty"`
}

// ExportFile is the full export document
type ExportFile struct {
	ExportedAt time.Time    `json:"exported_at"`
	Nickname   string       `json:"nickname"`
	Books      []ExportBook `json:"books"`
}

// ImportRequest represents an import request
type ImportRequest struct {
	Books []ExportBook `json:"books" binding:"required,max=1000"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func toExport(b models.Book, groupNames []string) ExportBook {
	return ExportBook{
		Title:           b.Title,
		Author:          b.Author,
		PublicationDate: deref(b.PublicationDate),
		Pages:           deref(b.Pages),
		StartDate:       deref(b.StartDate),
		EndDate:         deref(b.EndDate),
		Quote:           deref(b.Quote),
		Summary:         deref(b.Summary),
		Notes:           deref(b.Notes),
		Visibility:      b.Visibility,
		Groups:          groupNames,
		Time:            b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Import adds books from an export document. Every imported book is
// private; rows that fail validation are skipped and reported.
// @Summary Import books
// @Tags import-export
// @Accept json
// @Produce json
// @Param request body ImportRequest true "Books to import"
// @Success 200 {object} ImportResult
// @Failure 400 {object} apperr.Error
// @Security BearerAuth
// @Router /import [post]
func (h *Handler) Import(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.log, validation.FromBinding(err))
		return
	}

	ctx := c.Request.Context()
	result := ImportResult{Errors: []string{}}
	for i, row := range req.Books {
		view, err := h.books.Create(ctx, actor, books.Fields{
			Title:           row.Title,
			Author:          row.Author,
			PublicationDate: row.PublicationDate,
			Pages:           row.Pages,
			StartDate:       row.StartDate,
			EndDate:         row.EndDate,
			Quote:           row.Quote,
			Summary:         row.Summary,
			Notes:           row.Notes,
			Visibility:      models.VisibilityPrivate,
		})
		if err != nil {
			if kind := apperr.KindOf(err); kind == apperr.KindUnavailable || kind == apperr.KindInternal {
				apperr.Respond(c, h.log, err)
				return
			}
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("book %d (%q): %s", i+1, row.Title, message(err)))
			continue
		}

		// Preserve the original timestamp if provided
		if row.Time != "" {
			if t, err := time.Parse(time.RFC3339, row.Time); err == nil {
				if err := h.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", view.ID).UpdateColumn("created_at", t).Error; err != nil {
					h.log.Warn("failed to restore book timestamp", zap.Uint("book_id", view.ID), zap.Error(err))
				}
			}
		}
		result.Imported++
	}

	h.log.Info("books imported", zap.Uint("user_id", actor.ID), zap.Int("imported", result.Imported), zap.Int("skipped", result.Skipped))
	c.JSON(http.StatusOK, result)
}

func message(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		if details, ok := e.Details.(map[string]string); ok && len(details) > 0 {
			fields := make([]string, 0, len(details))
			for field := range details {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			parts := make([]string, len(fields))
			for i, field := range fields {
				parts[i] = field + " " + details[field]
			}
			return strings.Join(parts, "; ")
		}
		return e.Message
	}
	return err.Error()
}

// Export returns every book the current user owns, oldest first
// @Summary Export my books
// @Tags import-export
// @Produce json
// @Param download query bool false "Send as an attachment"
// @Success 200 {object} ExportFile
// @Security BearerAuth
// @Router /export [get]
func (h *Handler) Export(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	var owned []models.Book
	if err := h.db.WithContext(c.Request.Context()).Preload("Groups").
		Where("owner_id = ?", actor.ID).
		Order("created_at ASC, id ASC").
		Find(&owned).Error; err != nil {
		apperr.Respond(c, h.log, apperr.FromStore(err, ""))
		return
	}

	out := ExportFile{ExportedAt: time.Now().UTC(), Nickname: actor.Nickname, Books: make([]ExportBook, len(owned))}
	for i, b := range owned {
		var names []string
		for _, g := range b.Groups {
			names = append(names, g.Name)
		}
		out.Books[i] = toExport(b, names)
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=readlog-export.json")
	}
	c.JSON(http.StatusOK, out)
}

// ExportSingle exports one book the current user can view
// @Summary Export a book
// @Tags import-export
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} ExportBook
// @Failure 404 {object} apperr.Error
// @Security BearerAuth
// @Router /export/{id} [get]
func (h *Handler) ExportSingle(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	bookID, err := validation.ParamID(c, "id", "book")
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	view, err := h.books.Get(c.Request.Context(), actor, bookID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	var names []string
	for _, g := range view.Groups {
		names = append(names, g.Name)
	}
	c.JSON(http.StatusOK, toExport(view.Book, names))
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/import", h.Import)
	rg.GET("/export", h.Export)
	rg.GET("/export/:id", h.ExportSingle)
}
