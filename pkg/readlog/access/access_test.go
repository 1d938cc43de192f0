package access

import (
	"context"
	"testing"

	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDecide(t *testing.T) {
	r := NewResolver(nil, config.Policy{})
	private := &models.Book{OwnerID: 1, Visibility: models.VisibilityPrivate}
	shared := &models.Book{OwnerID: 1, Visibility: models.VisibilityGroup, Groups: []models.Group{{ID: 10}}}

	tests := []struct {
		name  string
		actor uint
		book  *models.Book
		roles map[uint]models.GroupRole
		want  BookAccess
	}{
		{"owner private", 1, private, nil, BookAccess{View: true, Edit: true, Delete: true, Like: true}},
		{"owner shared", 1, shared, nil, BookAccess{View: true, Edit: true, Delete: true, Comment: true, Like: true}},
		{"stranger private", 2, private, nil, BookAccess{}},
		{"member private", 2, private, map[uint]models.GroupRole{10: models.GroupRoleMember}, BookAccess{}},
		{"member shared", 2, shared, map[uint]models.GroupRole{10: models.GroupRoleMember}, BookAccess{View: true, Comment: true, Like: true}},
		{"admin shared without policy", 2, shared, map[uint]models.GroupRole{10: models.GroupRoleAdmin}, BookAccess{View: true, Comment: true, Like: true}},
		{"non-member shared", 2, shared, nil, BookAccess{}},
		{"anonymous", 0, shared, nil, BookAccess{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Decide(tt.actor, tt.book, tt.roles))
		})
	}
}

func TestDecideAdminDeletePolicy(t *testing.T) {
	r := NewResolver(nil, config.Policy{AdminCanDeleteBooks: true})
	shared := &models.Book{OwnerID: 1, Visibility: models.VisibilityGroup}

	acc := r.Decide(2, shared, map[uint]models.GroupRole{10: models.GroupRoleAdmin})
	assert.True(t, acc.Delete)
	assert.False(t, acc.Edit)

	acc = r.Decide(3, shared, map[uint]models.GroupRole{10: models.GroupRoleMember})
	assert.False(t, acc.Delete)
}

func TestLoadBook(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	r := NewResolver(db, config.Policy{})

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	club := testutil.CreateGroup(t, db, alice, "Club", "CLUB0001")
	testutil.AddMember(t, db, club, bob, models.GroupRoleMember)

	shared := testutil.CreateBook(t, db, alice, "Dune", club)
	private := testutil.CreateBook(t, db, alice, "Diary")

	book, acc, err := r.LoadBook(ctx, bob.ID, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.True(t, acc.View)
	assert.False(t, acc.Edit)

	_, _, err = r.LoadBook(ctx, bob.ID, private.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = r.LoadBook(ctx, carol.ID, shared.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = r.LoadBook(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMembershipChecks(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	r := NewResolver(db, config.Policy{})

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	club := testutil.CreateGroup(t, db, alice, "Club", "CLUB0001")
	other := testutil.CreateGroup(t, db, carol, "Other", "OTHER001")
	testutil.AddMember(t, db, club, bob, models.GroupRoleMember)

	assert.NoError(t, r.RequireAdmin(ctx, alice.ID, club.ID))
	assert.ErrorIs(t, r.RequireAdmin(ctx, bob.ID, club.ID), apperr.ErrForbidden)
	assert.ErrorIs(t, r.RequireAdmin(ctx, carol.ID, club.ID), apperr.ErrForbidden)

	m, err := r.RequireMember(ctx, bob.ID, club.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupRoleMember, m.Role)
	_, err = r.RequireMember(ctx, carol.ID, club.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.NoError(t, r.RequireMemberOfAll(ctx, bob.ID, []uint{club.ID}))
	assert.ErrorIs(t, r.RequireMemberOfAll(ctx, bob.ID, []uint{club.ID, other.ID}), apperr.ErrForbidden)
	assert.ErrorIs(t, r.RequireMemberOfAll(ctx, bob.ID, []uint{4242}), apperr.ErrForbidden)
}

func TestVisibleScopes(t *testing.T) {
	db := testutil.NewDB(t)
	r := NewResolver(db, config.Policy{})

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	club := testutil.CreateGroup(t, db, alice, "Club", "CLUB0001")
	other := testutil.CreateGroup(t, db, carol, "Other", "OTHER001")
	testutil.AddMember(t, db, club, bob, models.GroupRoleMember)

	testutil.CreateBook(t, db, alice, "Shared", club)
	testutil.CreateBook(t, db, alice, "Private")
	testutil.CreateBook(t, db, carol, "Elsewhere", other)
	testutil.CreateBook(t, db, bob, "Bob's", club)

	titles := func(scope func(*gorm.DB) *gorm.DB) []string {
		var books []models.Book
		require.NoError(t, db.Model(&models.Book{}).Scopes(scope).Order("title").Find(&books).Error)
		out := make([]string, len(books))
		for i, b := range books {
			out[i] = b.Title
		}
		return out
	}

	assert.Equal(t, []string{"Bob's", "Shared"}, titles(r.Visible(bob.ID)))
	assert.Equal(t, []string{"Bob's", "Private", "Shared"}, titles(r.Visible(alice.ID)))
	assert.Equal(t, []string{"Elsewhere"}, titles(r.Visible(carol.ID)))
	assert.Equal(t, []string{"Bob's", "Shared"}, titles(r.SharedWithMe(alice.ID)))
	assert.Equal(t, []string{"Bob's", "Shared"}, titles(r.SharedToGroup(club.ID)))
	assert.Equal(t, []string{"Bob's"}, titles(OwnedBy(bob.ID)))
}

func TestCanDeleteComment(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	club := testutil.CreateGroup(t, db, alice, "Club", "CLUB0001")
	testutil.AddMember(t, db, club, bob, models.GroupRoleMember)
	book := testutil.CreateBook(t, db, bob, "Dune", club)
	book.Groups = []models.Group{*club}
	comment := &models.Comment{BookID: book.ID, UserID: bob.ID, Content: "hi"}

	strict := NewResolver(db, config.Policy{})
	ok, err := strict.CanDeleteComment(ctx, bob.ID, comment, book)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = strict.CanDeleteComment(ctx, alice.ID, comment, book)
	require.NoError(t, err)
	assert.False(t, ok)

	lenient := NewResolver(db, config.Policy{AdminCanDeleteComments: true})
	ok, err = lenient.CanDeleteComment(ctx, alice.ID, comment, book)
	require.NoError(t, err)
	assert.True(t, ok)
}
