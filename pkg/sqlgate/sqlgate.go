// Package sqlgate implements the lexical read-only policy applied to SQL
// before it is handed to the database client.
//
// The gate is a prefix and keyword heuristic. It does not parse SQL, does not
// understand comments, string literals or statement boundaries, and must not
// be treated as a security boundary on its own.
package sqlgate

import (
	"fmt"
	"regexp"
	"strings"
)

// AllowedPrefixes are the statement shapes accepted by the gate
var AllowedPrefixes = []string{"select", "with", "show", "explain", "describe"}

// BannedWords are rejected when they appear anywhere as a whole word
var BannedWords = []string{
	"insert", "update", "delete", "alter", "drop",
	"create", "truncate", "grant", "revoke", "vacuum",
}

var bannedPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(BannedWords, "|") + `)\b`)

// Reason identifies why a statement was rejected
type Reason string

const (
	ReasonEmpty      Reason = "empty"
	ReasonPrefix     Reason = "prefix"
	ReasonBannedWord Reason = "banned_word"
)

// GateError describes a rejected statement
type GateError struct {
	Reason Reason
	Word   string // offending keyword, set for ReasonBannedWord
}

func (e *GateError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "SQL statement is empty"
	case ReasonPrefix:
		return fmt.Sprintf("only read-only statements are allowed (must start with one of: %s)",
			strings.Join(AllowedPrefixes, ", "))
	case ReasonBannedWord:
		return fmt.Sprintf("only read-only statements are allowed (found %q)", e.Word)
	default:
		return "statement rejected"
	}
}

// Check applies the read-only gate and returns nil when sql is accepted
func Check(sql string) error {
	normalized := strings.ToLower(strings.TrimSpace(sql))
	if normalized == "" {
		return &GateError{Reason: ReasonEmpty}
	}

	if !hasAllowedPrefix(normalized) {
		return &GateError{Reason: ReasonPrefix}
	}

	if m := bannedPattern.FindString(normalized); m != "" {
		return &GateError{Reason: ReasonBannedWord, Word: m}
	}

	return nil
}

// IsReadOnly reports whether sql passes the gate
func IsReadOnly(sql string) bool {
	return Check(sql) == nil
}

func hasAllowedPrefix(normalized string) bool {
	for _, prefix := range AllowedPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}
