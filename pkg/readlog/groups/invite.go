package groups

import (
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

// inviteAlphabet omits characters that are easy to confuse when a code is
// read aloud or copied by hand (0/O, 1/I).
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,32}$`)

// NewInviteCode returns a random invite code of the given length.
func NewInviteCode(length int) (string, error) {
	code, err := gonanoid.Generate(inviteAlphabet, length)
	if err != nil {
		return "", errors.Wrap(err, "generate invite code")
	}
	return code, nil
}

// NormalizeInviteCode trims and upper-cases a user-supplied code and
// reports whether it is well formed.
func NormalizeInviteCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code, inviteCodePattern.MatchString(code)
}
