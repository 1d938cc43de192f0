package social

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/books"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/groups"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/readinglog/readlog/pkg/readlog/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func actorOf(u *models.User) *auth.Actor {
	return auth.ActorFromUser(*u)
}

type fixture struct {
	db                *gorm.DB
	svc               *Service
	alice, bob, carol *models.User
	club              *models.Group
	shared, private   *models.Book
}

// newFixture: alice admins club, bob is a member, carol is unrelated.
// shared belongs to bob and is shared to club; private belongs to bob.
func newFixture(t *testing.T, policy config.Policy) *fixture {
	db := testutil.NewDB(t)
	f := &fixture{db: db, svc: NewService(db, access.NewResolver(db, policy), zap.NewNop())}
	f.alice = testutil.CreateUser(t, db, "alice")
	f.bob = testutil.CreateUser(t, db, "bob")
	f.carol = testutil.CreateUser(t, db, "carol")
	f.club = testutil.CreateGroup(t, db, f.alice, "Club", "CLUB0001")
	testutil.AddMember(t, db, f.club, f.bob, models.GroupRoleMember)
	f.shared = testutil.CreateBook(t, db, f.bob, "Dune", f.club)
	f.private = testutil.CreateBook(t, db, f.bob, "Diary")
	return f
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	state, err := f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, Count: 1}, *state)

	state, err = f.svc.ToggleLike(ctx, actorOf(f.bob), f.shared.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, Count: 2}, *state)

	state, err = f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: false, Count: 1}, *state)

	// Owners may like their own private books.
	state, err = f.svc.ToggleLike(ctx, actorOf(f.bob), f.private.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)

	_, err = f.svc.ToggleLike(ctx, actorOf(f.carol), f.shared.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ToggleLike(ctx, actorOf(f.alice), f.private.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ToggleLike(ctx, actorOf(f.alice), 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDoubleToggleRestoresState(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	before, err := f.svc.CountsFor(ctx, actorOf(f.alice), []uint{f.shared.ID})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
		require.NoError(t, err)
		state, err := f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
		require.NoError(t, err)
		assert.False(t, state.Liked)
		assert.Equal(t, before.Likes[f.shared.ID], state.Count)
	}
}

func TestConcurrentTogglesKeepOneLike(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
		}()
	}
	wg.Wait()

	var n int64
	require.NoError(t, f.db.Model(&models.Like{}).Where("book_id = ? AND user_id = ?", f.shared.ID, f.alice.ID).Count(&n).Error)
	assert.LessOrEqual(t, n, int64(1))
}

func TestAddComment(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	c, err := f.svc.AddComment(ctx, actorOf(f.alice), f.shared.ID, "  Loved it  ")
	require.NoError(t, err)
	assert.Equal(t, "Loved it", c.Content)
	assert.Equal(t, "alice", c.Nickname)
	assert.True(t, c.Own)

	_, err = f.svc.AddComment(ctx, actorOf(f.alice), f.shared.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.AddComment(ctx, actorOf(f.alice), f.shared.ID, strings.Repeat("é", MaxCommentLength+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.AddComment(ctx, actorOf(f.alice), f.shared.ID, strings.Repeat("é", MaxCommentLength))
	assert.NoError(t, err, "the bound counts characters, not bytes")

	_, err = f.svc.AddComment(ctx, actorOf(f.carol), f.shared.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.AddComment(ctx, actorOf(f.bob), f.private.ID, "note to self")
	assert.ErrorIs(t, err, apperr.ErrForbidden, "no comments on private books, even for the owner")
}

func TestListComments(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	for _, c := range []struct {
		user *models.User
		text string
	}{{f.alice, "first"}, {f.bob, "second"}, {f.alice, "third"}} {
		_, err := f.svc.AddComment(ctx, actorOf(c.user), f.shared.ID, c.text)
		require.NoError(t, err)
	}

	comments, err := f.svc.ListComments(ctx, actorOf(f.bob), f.shared.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "first", comments[0].Content)
	assert.Equal(t, "second", comments[1].Content)
	assert.Equal(t, "third", comments[2].Content)
	assert.False(t, comments[0].Own)
	assert.True(t, comments[1].Own)
	assert.Equal(t, "alice", comments[0].Nickname)

	_, err = f.svc.ListComments(ctx, actorOf(f.carol), f.shared.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteComment(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()

	c, err := f.svc.AddComment(ctx, actorOf(f.bob), f.shared.ID, "mine")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteComment(ctx, actorOf(f.alice), c.ID), apperr.ErrForbidden, "admin without policy")
	assert.ErrorIs(t, f.svc.DeleteComment(ctx, actorOf(f.carol), c.ID), apperr.ErrForbidden)
	require.NoError(t, f.svc.DeleteComment(ctx, actorOf(f.bob), c.ID))
	assert.ErrorIs(t, f.svc.DeleteComment(ctx, actorOf(f.bob), c.ID), apperr.ErrNotFound)
}

func TestDeleteCommentAdminPolicy(t *testing.T) {
	f := newFixture(t, config.Policy{AdminCanDeleteComments: true})
	ctx := context.Background()

	c, err := f.svc.AddComment(ctx, actorOf(f.bob), f.shared.ID, "mine")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteComment(ctx, actorOf(f.alice), c.ID))
}

func TestCountsFor(t *testing.T) {
	f := newFixture(t, config.Policy{})
	ctx := context.Background()
	other := testutil.CreateBook(t, f.db, f.alice, "Emma", f.club)
	hidden := testutil.CreateBook(t, f.db, f.carol, "Secret")

	_, err := f.svc.ToggleLike(ctx, actorOf(f.alice), f.shared.ID)
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, actorOf(f.bob), f.shared.ID)
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, actorOf(f.bob), other.ID)
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, actorOf(f.alice), f.shared.ID, "one")
	require.NoError(t, err)

	counts, err := f.svc.CountsFor(ctx, actorOf(f.alice), []uint{f.shared.ID, other.ID, f.private.ID, hidden.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{f.shared.ID: 2, other.ID: 1}, counts.Likes)
	assert.Equal(t, map[uint]int64{f.shared.ID: 1, other.ID: 0}, counts.Comments)
	assert.Equal(t, []uint{f.shared.ID}, counts.Liked)

	empty, err := f.svc.CountsFor(ctx, actorOf(f.alice), nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Likes)

	_, err = f.svc.CountsFor(ctx, actorOf(f.alice), make([]uint, MaxCountsBatch+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

// TestBookClubScenario walks through invite, sharing and commenting end to end.
func TestBookClubScenario(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	log := zap.NewNop()
	resolver := access.NewResolver(db, config.Policy{SoleAdminLeave: config.SoleAdminForbid})
	groupSvc := groups.NewService(db, resolver, 8, log)
	bookSvc := books.NewService(db, resolver, log)
	socialSvc := NewService(db, resolver, log)

	u1 := actorOf(testutil.CreateUser(t, db, "u1"))
	u2 := actorOf(testutil.CreateUser(t, db, "u2"))
	u3 := actorOf(testutil.CreateUser(t, db, "u3"))

	club, err := groupSvc.Create(ctx, u1, "BookClub")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Group{}).Where("id = ?", club.ID).Update("invite_code", "X7K2").Error)

	joined, err := groupSvc.JoinByInviteCode(ctx, u2, "X7K2")
	require.NoError(t, err)
	assert.Equal(t, models.GroupRoleMember, joined.Role)

	book, err := bookSvc.Create(ctx, u1, books.Fields{
		Title:      "Piranesi",
		Author:     "Susanna Clarke",
		Visibility: models.VisibilityGroup,
		GroupIDs:   []uint{club.ID},
	})
	require.NoError(t, err)

	_, err = bookSvc.Get(ctx, u2, book.ID)
	require.NoError(t, err)

	comment, err := socialSvc.AddComment(ctx, u2, book.ID, "Loved it")
	require.NoError(t, err)
	assert.ErrorIs(t, socialSvc.DeleteComment(ctx, u1, comment.ID), apperr.ErrForbidden)

	// A private book stays hidden and keeps its added_by snapshot on edit.
	diary, err := bookSvc.Create(ctx, u1, books.Fields{Title: "Diary", Author: "u1"})
	require.NoError(t, err)
	_, err = bookSvc.Get(ctx, u3, diary.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	title := "My Diary"
	edited, err := bookSvc.Update(ctx, u1, diary.ID, books.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "My Diary", edited.Title)
	assert.Equal(t, diary.AddedBy, edited.AddedBy)

	// Like then like again.
	state, err := socialSvc.ToggleLike(ctx, u1, book.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, Count: 1}, *state)
	state, err = socialSvc.ToggleLike(ctx, u1, book.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: false, Count: 0}, *state)

	// Deleting the group reverts the book to private and hides it again.
	require.ErrorIs(t, groupSvc.Delete(ctx, u2, club.ID), apperr.ErrForbidden)
	require.NoError(t, groupSvc.Delete(ctx, u1, club.ID))
	_, err = bookSvc.Get(ctx, u2, book.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
