package catalog

import (
	"regexp"
	"strings"
)

// pathPattern validates virtual paths: leading and trailing slash around
// word-character segments, at most two segments deep.
var pathPattern = regexp.MustCompile(`^/([\w-]+?(/[\w-]+?)?)*/$`)

// NormalizePath maps blank or invalid virtual paths to the root path /.
// Valid paths pass through unchanged.
func NormalizePath(path string) string {
	if strings.TrimSpace(path) == "" || !ValidPath(path) {
		return "/"
	}
	return path
}

// ValidPath reports whether path is a well-formed virtual path. The bare
// root path counts as valid.
func ValidPath(path string) bool {
	return path == "/" || pathPattern.MatchString(path)
}
