package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Forbidden("only the owner can edit this book")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("update: %w", err)
	assert.True(t, errors.Is(wrapped, ErrForbidden))
	assert.Equal(t, KindForbidden, KindOf(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindInvalidInput:    http.StatusBadRequest,
		KindConflict:        http.StatusConflict,
		KindUnavailable:     http.StatusServiceUnavailable,
		KindRateLimited:     http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind)
	}
}

func TestFromStore(t *testing.T) {
	assert.NoError(t, FromStore(nil, "x"))

	err := FromStore(gorm.ErrRecordNotFound, "book not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "book not found", err.Error())

	assert.True(t, errors.Is(FromStore(gorm.ErrDuplicatedKey, ""), ErrConflict))

	domain := InvalidInput("title is required")
	assert.Same(t, domain, FromStore(domain, ""))

	other := FromStore(errors.New("disk on fire"), "")
	assert.Equal(t, KindInternal, KindOf(other))
	assert.Equal(t, "internal error: disk on fire", other.Error())
}
