package backends

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts an absolute file path to a file:// URI
func PathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath converts a file:// URI to a path. Other URIs are returned as is.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}

// RelativePath returns uri relative to root in slash form. It fails for
// non-file URIs and for files outside root.
func RelativePath(root, uri string) (string, bool) {
	if !strings.HasPrefix(uri, "file://") {
		return "", false
	}
	rel, err := filepath.Rel(root, URIToPath(uri))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
