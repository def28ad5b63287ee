package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrIdentifierCharset = errors.New("invalid identifier: only letters, numbers, and underscores allowed")
	ErrIdentifierTooLong = errors.New("identifier too long (max 64 characters)")
	ErrIdentifierKeyword = errors.New("identifier cannot be a SQL keyword")
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// reservedKeywords is the fixed deny list for generated identifiers. The
// data-access layer owns the actual interpolation safety; this is a
// defense-in-depth guard for callers that build identifiers dynamically.
var reservedKeywords = map[string]struct{}{
	"SELECT": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {},
	"CREATE": {}, "ALTER": {}, "TABLE": {}, "DATABASE": {}, "INDEX": {},
	"VIEW": {}, "TRIGGER": {}, "PROCEDURE": {}, "FUNCTION": {},
	"GRANT": {}, "REVOKE": {}, "UNION": {}, "JOIN": {}, "WHERE": {},
	"FROM": {}, "INTO": {},
}

// SanitizeIdentifier checks that a table or column name is safe to
// interpolate into a generated data-access expression.
func SanitizeIdentifier(identifier string) error {
	if !identifierPattern.MatchString(identifier) {
		return ErrIdentifierCharset
	}
	if len(identifier) > 64 {
		return ErrIdentifierTooLong
	}
	if _, ok := reservedKeywords[strings.ToUpper(identifier)]; ok {
		return ErrIdentifierKeyword
	}
	return nil
}
