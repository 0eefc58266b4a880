package db

import "strings"

// LikeEscape is the escape character used with every LIKE pattern built by
// this package. It is valid in MySQL, Postgres and SQLite string literals
// without further quoting.
const LikeEscape = "!"

var likeReplacer = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// EscapeLike escapes LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	return likeReplacer.Replace(s)
}

// PrefixPattern returns a LIKE pattern matching values that start with prefix.
func PrefixPattern(prefix string) string {
	return EscapeLike(prefix) + "%"
}
