package core

import (
	"fmt"
	"strings"
)

// SplitPath turns a display path such as "foo/bar" into its segments.
// Leading, trailing and repeated slashes are ignored.
func SplitPath(display string) []string {
	parts := strings.Split(display, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// DocumentPath validates a document key and returns its segments.
func DocumentPath(key string) ([]string, error) {
	segments := SplitPath(key)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return segments, nil
}
