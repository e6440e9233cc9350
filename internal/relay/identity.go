package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIdentityLength bounds selfId and peerId in bytes.
const MaxIdentityLength = 256

// ValidateIdentity checks a connection id taken from the upgrade path.
// Ids are otherwise opaque; pairing is not authorized here.
func ValidateIdentity(param, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return &IdentityError{Param: param, Value: value, Reason: "must not be empty"}
	case len(value) > MaxIdentityLength:
		return &IdentityError{Param: param, Value: value[:32] + "...", Reason: "too long"}
	case !utf8.ValidString(value):
		return &IdentityError{Param: param, Value: value, Reason: "not valid UTF-8"}
	case strings.IndexFunc(value, unicode.IsControl) >= 0:
		return &IdentityError{Param: param, Value: value, Reason: "contains control characters"}
	}
	return nil
}
