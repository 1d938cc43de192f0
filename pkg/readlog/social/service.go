// Package social stores likes and comments on books.
package social

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// MaxCommentLength is the comment bound in characters.
	MaxCommentLength = 1000
	// MaxCountsBatch bounds the number of books per CountsFor call.
	MaxCountsBatch = 200
)

// LikeState is the result of a toggle.
type LikeState struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}

// CommentView is a comment with its author's current nickname.
type CommentView struct {
	ID        uint      `json:"id"`
	BookID    uint      `json:"book_id"`
	UserID    uint      `json:"user_id"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Own       bool      `json:"own"`
}

// Counts holds batched like and comment counts. Books the caller cannot
// see are left out.
type Counts struct {
	Likes    map[uint]int64 `json:"likes"`
	Comments map[uint]int64 `json:"comments"`
	Liked    []uint         `json:"liked"`
}

// Service implements likes and comments.
type Service struct {
	db     *gorm.DB
	access *access.Resolver
	log    *zap.Logger
}

// NewService creates a social service.
func NewService(db *gorm.DB, resolver *access.Resolver, log *zap.Logger) *Service {
	return &Service{db: db, access: resolver, log: log}
}

// viewable loads a book and fails with Forbidden when the actor may not see it.
func (s *Service) viewable(ctx context.Context, actorID, bookID uint) (*models.Book, access.BookAccess, error) {
	var book models.Book
	if err := s.db.WithContext(ctx).Preload("Groups").First(&book, bookID).Error; err != nil {
		return nil, access.BookAccess{}, apperr.FromStore(err, "Book not found")
	}
	acc, err := s.access.Book(ctx, actorID, &book)
	if err != nil {
		return nil, access.BookAccess{}, err
	}
	if !acc.View {
		return nil, access.BookAccess{}, apperr.Forbidden("You do not have access to this book")
	}
	return &book, acc, nil
}

// ToggleLike likes the book, or unlikes it if the actor already does.
// Concurrent toggles cannot create a second like; the unique index on
// (book_id, user_id) absorbs the race.
func (s *Service) ToggleLike(ctx context.Context, actor *auth.Actor, bookID uint) (*LikeState, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if _, acc, err := s.viewable(ctx, actor.ID, bookID); err != nil {
		return nil, err
	} else if !acc.Like {
		return nil, apperr.Forbidden("You cannot like this book")
	}

	state := &LikeState{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("book_id = ? AND user_id = ?", bookID, actor.ID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			like := models.Like{BookID: bookID, UserID: actor.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			state.Liked = true
		}
		return tx.Model(&models.Like{}).Where("book_id = ?", bookID).Count(&state.Count).Error
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return state, nil
}

// AddComment appends a comment to a shared book.
func (s *Service) AddComment(ctx context.Context, actor *auth.Actor, bookID uint, content string) (*CommentView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.InvalidInput("Comment must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperr.InvalidInputf("Comment must not exceed %d characters", MaxCommentLength)
	}

	book, acc, err := s.viewable(ctx, actor.ID, bookID)
	if err != nil {
		return nil, err
	}
	if book.Visibility != models.VisibilityGroup || !acc.Comment {
		return nil, apperr.Forbidden("Comments are only available on shared books")
	}

	comment := models.Comment{BookID: bookID, UserID: actor.ID, Content: content}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("comment added", zap.Uint("comment_id", comment.ID), zap.Uint("book_id", bookID), zap.Uint("user_id", actor.ID))
	return &CommentView{
		ID:        comment.ID,
		BookID:    bookID,
		UserID:    actor.ID,
		Nickname:  actor.Nickname,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
		Own:       true,
	}, nil
}

// DeleteComment removes a comment. Only its author may, unless group
// admins are allowed to by policy.
func (s *Service) DeleteComment(ctx context.Context, actor *auth.Actor, commentID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	var comment models.Comment
	if err := db.Preload("Book.Groups").First(&comment, commentID).Error; err != nil {
		return apperr.FromStore(err, "Comment not found")
	}
	ok, err := s.access.CanDeleteComment(ctx, actor.ID, &comment, &comment.Book)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("You can only delete your own comments")
	}

	if err := db.Delete(&models.Comment{}, commentID).Error; err != nil {
		return apperr.FromStore(err, "")
	}

	s.log.Info("comment deleted", zap.Uint("comment_id", commentID), zap.Uint("user_id", actor.ID), zap.Bool("as_author", comment.UserID == actor.ID))
	return nil
}

// ListComments returns a book's comments in creation order.
func (s *Service) ListComments(ctx context.Context, actor *auth.Actor, bookID uint) ([]CommentView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if _, _, err := s.viewable(ctx, actor.ID, bookID); err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := s.db.WithContext(ctx).Preload("User").
		Where("book_id = ?", bookID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	out := make([]CommentView, len(comments))
	for i, c := range comments {
		out[i] = CommentView{
			ID:        c.ID,
			BookID:    c.BookID,
			UserID:    c.UserID,
			Nickname:  c.User.Nickname,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
			Own:       c.UserID == actor.ID,
		}
	}
	return out, nil
}

// CountsFor returns like and comment counts for a batch of books, plus the
// subset the actor has liked.
func (s *Service) CountsFor(ctx context.Context, actor *auth.Actor, bookIDs []uint) (*Counts, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if len(bookIDs) > MaxCountsBatch {
		return nil, apperr.InvalidInputf("At most %d books per request", MaxCountsBatch)
	}
	counts := &Counts{Likes: map[uint]int64{}, Comments: map[uint]int64{}, Liked: []uint{}}
	if len(bookIDs) == 0 {
		return counts, nil
	}
	db := s.db.WithContext(ctx)

	var visible []uint
	if err := db.Model(&models.Book{}).
		Scopes(s.access.Visible(actor.ID)).
		Where("books.id IN ?", bookIDs).
		Pluck("books.id", &visible).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	if len(visible) == 0 {
		return counts, nil
	}
	for _, id := range visible {
		counts.Likes[id] = 0
		counts.Comments[id] = 0
	}

	if err := aggregate(db.Model(&models.Like{}), visible, counts.Likes); err != nil {
		return nil, err
	}
	if err := aggregate(db.Model(&models.Comment{}), visible, counts.Comments); err != nil {
		return nil, err
	}
	if err := db.Model(&models.Like{}).
		Where("user_id = ? AND book_id IN ?", actor.ID, visible).
		Order("book_id").
		Pluck("book_id", &counts.Liked).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return counts, nil
}

func aggregate(db *gorm.DB, bookIDs []uint, into map[uint]int64) error {
	var rows []struct {
		BookID uint
		Count  int64
	}
	if err := db.Select("book_id, COUNT(*) AS count").
		Where("book_id IN ?", bookIDs).
		Group("book_id").
		Scan(&rows).Error; err != nil {
		return apperr.FromStore(err, "")
	}
	for _, r := range rows {
		into[r.BookID] = r.Count
	}
	return nil
}
