// Package slug composes, parses and normalizes human-readable identifiers.
//
// A composed identifier is a name alone (sequence 1) or the name, a separator
// and a decimal sequence number (sequence > 1):
//
//	Compose("hello", 1, "--") // "hello"
//	Compose("hello", 3, "--") // "hello--3"
//	Parse("hello--3", "--")   // "hello", 3
//
// Compose and Parse are total: every input yields a result. Parse treats a
// missing separator, an empty or non-numeric suffix, and suffixes below 2 as
// part of the name, returning sequence 1.
package slug

import (
	"strconv"
	"strings"
)

// DefaultSeparator joins a name and its sequence number.
const DefaultSeparator = "--"

// Compose joins name and sequence with sep. Sequences below 2 yield name unchanged.
func Compose(name string, sequence int, sep string) string {
	if sequence < 2 {
		return name
	}
	return name + sep + strconv.Itoa(sequence)
}

// Parse splits id into its name and sequence using the last occurrence of sep.
func Parse(id, sep string) (string, int) {
	if sep == "" {
		return id, 1
	}
	idx := strings.LastIndex(id, sep)
	if idx <= 0 {
		return id, 1
	}
	suffix := id[idx+len(sep):]
	if !isDigits(suffix) {
		return id, 1
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 2 {
		return id, 1
	}
	return id[:idx], n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
