package fetch

import (
	"net/url"
	"path"
	"strings"
)

// pageExtensions lists common web-page extensions that should be visited by
// the browser rather than downloaded.
// https://stackoverflow.com/questions/1614520
var pageExtensions = map[string]struct{}{
	".asp":   {},
	".aspx":  {},
	".asx":   {},
	".cfm":   {},
	".yaws":  {},
	".htm":   {},
	".html":  {},
	".xhtml": {},
	".jhtml": {},
	".jsp":   {},
	".jspx":  {},
	".pl":    {},
	".py":    {},
	".rb":    {},
	".rhtml": {},
	".shtml": {},
	".cgi":   {},
}

// URLExtension returns the extension of the URL's path, including the
// leading dot, or "" when there is none (or the URL does not parse).
func URLExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

// URLBasename returns the last element of the URL's path.
func URLBasename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

// IsFile decides whether the URL points at a direct file (download it) or a
// web page (render it). A URL with no path extension is a web page.
func IsFile(rawURL string) bool {
	ext := URLExtension(rawURL)
	if ext == "" {
		return false
	}
	_, isPage := pageExtensions[strings.ToLower(ext)]
	return !isPage
}
