package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Sanitize strips HTML from user-supplied text (message bodies, group
// names) before it is persisted or fanned out.
func Sanitize(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}
