package apperr

import (
	"database/sql/driver"
	"errors"
	"net"

	"gorm.io/gorm"
)

// FromStore translates a gorm error into the domain taxonomy.
// notFound is the message used when the row is absent.
func FromStore(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict.WithCause(err)
	case errors.Is(err, driver.ErrBadConn):
		return ErrUnavailable.WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable.WithCause(err)
	}
	return Internal(err)
}
