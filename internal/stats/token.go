package stats

import (
	"errors"
	"regexp"
)

// ErrTokenNotFound means the pool listing page no longer carries the
// last_time assignment, usually because the upstream markup changed.
var ErrTokenNotFound = errors.New("last_time token not found in pool page")

var lastTimeRe = regexp.MustCompile(`var last_time = "([^"]+)"`)

// ExtractToken returns the value assigned to last_time in the page source.
func ExtractToken(html string) (string, error) {
	m := lastTimeRe.FindStringSubmatch(html)
	if m == nil {
		return "", ErrTokenNotFound
	}
	return m[1], nil
}
