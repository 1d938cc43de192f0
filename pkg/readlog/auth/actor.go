package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/models"
)

// Actor is the authenticated user performing an operation. It is resolved
// once per request and passed explicitly into every service call.
type Actor struct {
	ID       uint
	Nickname string
	Email    string
}

// ActorFromUser builds an Actor from a user row
func ActorFromUser(u models.User) *Actor {
	return &Actor{ID: u.ID, Nickname: u.Nickname, Email: u.Email}
}

// Require returns an Unauthenticated error unless a is a resolved actor
func Require(a *Actor) error {
	if a == nil || a.ID == 0 {
		return apperr.ErrUnauthenticated
	}
	return nil
}

// CurrentActor returns the actor stored by ActorMiddleware
func CurrentActor(c *gin.Context) (*Actor, error) {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	actor, ok := v.(*Actor)
	if !ok || actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return actor, nil
}
