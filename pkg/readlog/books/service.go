// Package books owns reading-log entries: their fields, owner, visibility
// and the groups they are shared to.
package books

import (
	"context"
	"strings"

	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Scope selects which books List returns.
type Scope string

const (
	ScopeMine   Scope = "mine"
	ScopeShared Scope = "shared"
	ScopeGroup  Scope = "group"
)

// Fields are the editable attributes of a book. Dates use YYYY-MM-DD.
type Fields struct {
	Title           string            `json:"title" validate:"required,max=300"`
	Author          string            `json:"author" validate:"required,max=200"`
	PublicationDate string            `json:"publication_date" validate:"omitempty,max=20"`
	Pages           int               `json:"pages" validate:"gte=0,lte=100000"`
	StartDate       string            `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string            `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Quote           string            `json:"quote" validate:"max=2000"`
	Summary         string            `json:"summary" validate:"max=5000"`
	Notes           string            `json:"notes" validate:"max=10000"`
	Visibility      models.Visibility `json:"visibility" validate:"omitempty,oneof=private group"`
	GroupIDs        []uint            `json:"group_ids" validate:"dive,gt=0"`
}

// Patch is a partial update. Nil fields are left alone; an empty string
// clears an optional field, as does pages = 0.
type Patch struct {
	Title           *string            `json:"title" validate:"omitempty,max=300"`
	Author          *string            `json:"author" validate:"omitempty,max=200"`
	PublicationDate *string            `json:"publication_date" validate:"omitempty,max=20"`
	Pages           *int               `json:"pages" validate:"omitempty,gte=0,lte=100000"`
	StartDate       *string            `json:"start_date"`
	EndDate         *string            `json:"end_date"`
	Quote           *string            `json:"quote" validate:"omitempty,max=2000"`
	Summary         *string            `json:"summary" validate:"omitempty,max=5000"`
	Notes           *string            `json:"notes" validate:"omitempty,max=10000"`
	Visibility      *models.Visibility `json:"visibility" validate:"omitempty,oneof=private group"`
	GroupIDs        *[]uint            `json:"group_ids"`
}

// ListQuery filters List.
type ListQuery struct {
	Scope   Scope
	GroupID uint
	Query   string
	Limit   int
	Offset  int
}

// GroupRef names a group a book is shared to.
type GroupRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// BookView is a book together with the caller's access to it.
type BookView struct {
	models.Book
	Groups []GroupRef        `json:"groups"`
	Access access.BookAccess `json:"access"`
}

func newView(b models.Book, acc access.BookAccess) BookView {
	refs := make([]GroupRef, len(b.Groups))
	for i, g := range b.Groups {
		refs[i] = GroupRef{ID: g.ID, Name: g.Name}
	}
	return BookView{Book: b, Groups: refs, Access: acc}
}

// Page is one page of List results.
type Page struct {
	Books  []BookView `json:"books"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Service implements the book repository operations.
type Service struct {
	db       *gorm.DB
	access   *access.Resolver
	validate *validation.Validator
	log      *zap.Logger
}

// NewService creates a book service.
func NewService(db *gorm.DB, resolver *access.Resolver, log *zap.Logger) *Service {
	return &Service{db: db, access: resolver, validate: validation.New(), log: log}
}

// Create adds a book owned by the actor. added_by is taken from the actor's
// current nickname and never changes afterwards.
func (s *Service) Create(ctx context.Context, actor *auth.Actor, f Fields) (*BookView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	f.trim()
	if err := s.validate.Validate(f); err != nil {
		return nil, err
	}

	book := models.Book{
		OwnerID:    actor.ID,
		AddedBy:    actor.Nickname,
		Title:      f.Title,
		Author:     f.Author,
		Visibility: f.Visibility,
	}
	if book.Visibility == "" {
		book.Visibility = models.VisibilityPrivate
	}
	book.PublicationDate = optional(f.PublicationDate)
	book.StartDate = optional(f.StartDate)
	book.EndDate = optional(f.EndDate)
	book.Quote = optional(f.Quote)
	book.Summary = optional(f.Summary)
	book.Notes = optional(f.Notes)
	if f.Pages > 0 {
		pages := f.Pages
		book.Pages = &pages
	}
	if err := checkDates(book.StartDate, book.EndDate); err != nil {
		return nil, err
	}

	groupIDs, err := s.sharing(ctx, actor, book.Visibility, f.GroupIDs)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&book).Error; err != nil {
			return err
		}
		return linkGroups(tx, book.ID, groupIDs)
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("book created", zap.Uint("book_id", book.ID), zap.Uint("user_id", actor.ID), zap.String("visibility", string(book.Visibility)))
	return s.Get(ctx, actor, book.ID)
}

// Get returns a book the actor may view. Hidden books are reported as
// NotFound.
func (s *Service) Get(ctx context.Context, actor *auth.Actor, bookID uint) (*BookView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	book, acc, err := s.access.LoadBook(ctx, actor.ID, bookID)
	if err != nil {
		return nil, err
	}
	v := newView(*book, acc)
	return &v, nil
}

// Update applies a patch to a book the actor owns.
func (s *Service) Update(ctx context.Context, actor *auth.Actor, bookID uint, p Patch) (*BookView, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Validate(p); err != nil {
		return nil, err
	}
	book, acc, err := s.access.LoadBook(ctx, actor.ID, bookID)
	if err != nil {
		return nil, err
	}
	if !acc.Edit {
		return nil, apperr.Forbidden("Only the owner can edit this book")
	}

	if err := p.apply(book); err != nil {
		return nil, err
	}

	groupIDs := book.GroupIDs()
	if p.GroupIDs != nil {
		groupIDs = *p.GroupIDs
	}
	groupsChanged := p.GroupIDs != nil || p.Visibility != nil
	if groupsChanged {
		groupIDs, err = s.sharing(ctx, actor, book.Visibility, groupIDs)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(book).Select(editableColumns).Omit("Groups", "Owner").Updates(book).Error; err != nil {
			return err
		}
		if !groupsChanged {
			return nil
		}
		if err := tx.Exec("DELETE FROM book_groups WHERE book_id = ?", book.ID).Error; err != nil {
			return err
		}
		return linkGroups(tx, book.ID, groupIDs)
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	s.log.Info("book updated", zap.Uint("book_id", book.ID), zap.Uint("user_id", actor.ID))
	return s.Get(ctx, actor, book.ID)
}

// Delete removes a book with its likes, comments and group links. Only the
// owner may delete, unless admins are allowed to by policy.
func (s *Service) Delete(ctx context.Context, actor *auth.Actor, bookID uint) error {
	if err := auth.Require(actor); err != nil {
		return err
	}
	_, acc, err := s.access.LoadBook(ctx, actor.ID, bookID)
	if err != nil {
		return err
	}
	if !acc.Delete {
		return apperr.Forbidden("Only the owner can delete this book")
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return PurgeTx(tx, []uint{bookID})
	}); err != nil {
		return apperr.FromStore(err, "")
	}

	s.log.Info("book deleted", zap.Uint("book_id", bookID), zap.Uint("user_id", actor.ID), zap.Bool("as_owner", acc.Owner()))
	return nil
}

// List returns books in the requested scope, newest first. Private books of
// other users never appear.
func (s *Service) List(ctx context.Context, actor *auth.Actor, q ListQuery) (*Page, error) {
	if err := auth.Require(actor); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var scope func(*gorm.DB) *gorm.DB
	switch q.Scope {
	case ScopeMine, "":
		scope = access.OwnedBy(actor.ID)
	case ScopeShared:
		scope = s.access.SharedWithMe(actor.ID)
	case ScopeGroup:
		if _, err := s.access.RequireMember(ctx, actor.ID, q.GroupID); err != nil {
			return nil, err
		}
		scope = s.access.SharedToGroup(q.GroupID)
	default:
		return nil, apperr.InvalidInputf("Unknown scope %q", q.Scope)
	}

	db := s.db.WithContext(ctx).Model(&models.Book{}).Scopes(scope)
	if term := strings.TrimSpace(q.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		db = db.Where("LOWER(books.title) LIKE ? OR LOWER(books.author) LIKE ?", like, like)
	}
	db = db.Session(&gorm.Session{})

	page := &Page{Limit: q.Limit, Offset: q.Offset, Books: []BookView{}}
	if err := db.Count(&page.Total).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	var books []models.Book
	if err := db.Preload("Groups").
		Order("books.created_at DESC, books.id DESC").
		Limit(q.Limit).Offset(q.Offset).
		Find(&books).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	roles, err := s.roles(ctx, actor.ID, books)
	if err != nil {
		return nil, err
	}
	for i := range books {
		page.Books = append(page.Books, newView(books[i], s.access.Decide(actor.ID, &books[i], roles)))
	}
	return page, nil
}

// roles loads the actor's roles across every group the books are shared to.
func (s *Service) roles(ctx context.Context, actorID uint, books []models.Book) (map[uint]models.GroupRole, error) {
	seen := make(map[uint]bool)
	var ids []uint
	for _, b := range books {
		for _, id := range b.GroupIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return s.access.Roles(ctx, actorID, ids)
}

// sharing validates the group set for a visibility. Private books keep no
// groups; group books need at least one group, all of which the actor
// belongs to.
func (s *Service) sharing(ctx context.Context, actor *auth.Actor, v models.Visibility, groupIDs []uint) ([]uint, error) {
	if v != models.VisibilityGroup {
		return nil, nil
	}
	groupIDs = dedupe(groupIDs)
	if len(groupIDs) == 0 {
		return nil, apperr.InvalidInput("A shared book needs at least one group")
	}
	if err := s.access.RequireMemberOfAll(ctx, actor.ID, groupIDs); err != nil {
		return nil, err
	}
	return groupIDs, nil
}

func linkGroups(tx *gorm.DB, bookID uint, groupIDs []uint) error {
	for _, gid := range groupIDs {
		if err := tx.Exec("INSERT INTO book_groups (book_id, group_id) VALUES (?, ?)", bookID, gid).Error; err != nil {
			return err
		}
	}
	return nil
}

// PurgeTx deletes books and everything attached to them inside tx.
func PurgeTx(tx *gorm.DB, bookIDs []uint) error {
	if len(bookIDs) == 0 {
		return nil
	}
	if err := tx.Where("book_id IN ?", bookIDs).Delete(&models.Like{}).Error; err != nil {
		return err
	}
	if err := tx.Where("book_id IN ?", bookIDs).Delete(&models.Comment{}).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM book_groups WHERE book_id IN ?", bookIDs).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", bookIDs).Delete(&models.Book{}).Error
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
