// Package activity summarises a reader's recent social activity.
package activity

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecentLimit is the number of items in each recent list.
const RecentLimit = 5

// Item is one like or comment. Content is empty for likes.
type Item struct {
	ID        uint      `json:"id"`
	BookID    uint      `json:"book_id"`
	BookTitle string    `json:"book_title"`
	UserID    uint      `json:"user_id"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Totals are the headline counters.
type Totals struct {
	Books            int64 `json:"books"`
	Groups           int64 `json:"groups"`
	CommentsWritten  int64 `json:"comments_written"`
	CommentsReceived int64 `json:"comments_received"`
	LikesGiven       int64 `json:"likes_given"`
	LikesReceived    int64 `json:"likes_received"`
}

// Summary is a reader's activity page.
type Summary struct {
	Totals           Totals `json:"totals"`
	CommentsWritten  []Item `json:"comments_written"`
	CommentsReceived []Item `json:"comments_received"`
	LikesGiven       []Item `json:"likes_given"`
	LikesReceived    []Item `json:"likes_received"`
}

// Service builds activity summaries.
type Service struct {
	db     *gorm.DB
	access *access.Resolver
}

// NewService creates an activity service.
func NewService(db *gorm.DB, resolver *access.Resolver) *Service {
	return &Service{db: db, access: resolver}
}

// Summary returns the actor's counters and recent activity. Items given by
// the actor only include books the actor can still see.
func (s *Service) Summary(ctx context.Context, actor *auth.Actor) (*Summary, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	out := &Summary{}

	counters := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&out.Totals.Books, db.Model(&models.Book{}).Where("owner_id = ?", actor.ID)},
		{&out.Totals.Groups, db.Model(&models.GroupMembership{}).Where("user_id = ?", actor.ID)},
		{&out.Totals.CommentsWritten, db.Model(&models.Comment{}).Where("user_id = ?", actor.ID)},
		{&out.Totals.CommentsReceived, commentsOnBooks(db).Where("books.owner_id = ? AND book_comments.user_id <> ?", actor.ID, actor.ID)},
		{&out.Totals.LikesGiven, db.Model(&models.Like{}).Where("user_id = ?", actor.ID)},
		{&out.Totals.LikesReceived, likesOnBooks(db).Where("books.owner_id = ? AND book_likes.user_id <> ?", actor.ID, actor.ID)},
	}
	for _, c := range counters {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, apperr.FromStore(err, "")
		}
	}

	lists := []struct {
		dest  *[]Item
		query *gorm.DB
	}{
		{&out.CommentsWritten, recentComments(db).Scopes(s.access.Visible(actor.ID)).Where("book_comments.user_id = ?", actor.ID)},
		{&out.CommentsReceived, recentComments(db).Where("books.owner_id = ? AND book_comments.user_id <> ?", actor.ID, actor.ID)},
		{&out.LikesGiven, recentLikes(db).Scopes(s.access.Visible(actor.ID)).Where("book_likes.user_id = ?", actor.ID)},
		{&out.LikesReceived, recentLikes(db).Where("books.owner_id = ? AND book_likes.user_id <> ?", actor.ID, actor.ID)},
	}
	for _, l := range lists {
		*l.dest = []Item{}
		if err := l.query.Limit(RecentLimit).Scan(l.dest).Error; err != nil {
			return nil, apperr.FromStore(err, "")
		}
	}
	return out, nil
}

func commentsOnBooks(db *gorm.DB) *gorm.DB {
	return db.Table("book_comments").Joins("JOIN books ON books.id = book_comments.book_id")
}

func likesOnBooks(db *gorm.DB) *gorm.DB {
	return db.Table("book_likes").Joins("JOIN books ON books.id = book_likes.book_id")
}

func recentComments(db *gorm.DB) *gorm.DB {
	return commentsOnBooks(db).
		Select("book_comments.id, book_comments.book_id, books.title AS book_title, book_comments.user_id, users.nickname, book_comments.content, book_comments.created_at").
		Joins("JOIN users ON users.id = book_comments.user_id").
		Order("book_comments.created_at DESC, book_comments.id DESC")
}

func recentLikes(db *gorm.DB) *gorm.DB {
	return likesOnBooks(db).
		Select("book_likes.id, book_likes.book_id, books.title AS book_title, book_likes.user_id, users.nickname, book_likes.created_at").
		Joins("JOIN users ON users.id = book_likes.user_id").
		Order("book_likes.created_at DESC, book_likes.id DESC")
}

// Handler serves the activity summary
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new activity handler
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Get returns the current user's activity summary
func (h *Handler) Get(c *gin.Context) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	summary, err := h.svc.Summary(c.Request.Context(), actor)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RegisterRoutes registers the activity route on the profile router
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/activity", h.Get)
}
