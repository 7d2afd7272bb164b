// Package frontend holds the pieces shared by every medium adapter.
package frontend

import "strings"

// ErrorPrefix starts every user-visible error message relayed from a
// response envelope.
const ErrorPrefix = "cecibot error: "

// ValidScheme reports whether the URL carries one of the supported schemes.
func ValidScheme(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// UserError formats a response-envelope error for the user.
func UserError(message string) string {
	return ErrorPrefix + message
}
