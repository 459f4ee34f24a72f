package outbox

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// ParseIdentifier parses "schema.table" or "table" into pgx.Identifier.
func ParseIdentifier(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("identifier is empty")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("invalid identifier %q (expected table or schema.table)", s)
	}
	ident := make(pgx.Identifier, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if !validIdentPart(part) {
			return nil, invalidConfig("invalid identifier %q (bad part %q)", s, part)
		}
		ident = append(ident, part)
	}
	return ident, nil
}

// ParseIdentifierList parses comma-separated identifiers, skipping blanks.
func ParseIdentifierList(s string) ([]pgx.Identifier, error) {
	var out []pgx.Identifier
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		ident, err := ParseIdentifier(item)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, nil
}

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}

func validIdentPart(p string) bool {
	if p == "" {
		return false
	}
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
