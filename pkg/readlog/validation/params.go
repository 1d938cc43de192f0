package validation

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/apperr"
)

// ParamID parses a numeric path parameter. what names the resource in the
// error message, e.g. "group".
func ParamID(c *gin.Context, name, what string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.InvalidInputf("Invalid %s ID", what)
	}
	return uint(id), nil
}
