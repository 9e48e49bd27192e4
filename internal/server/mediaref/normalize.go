package mediaref

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
)

// Normalize strips the query string and fragment from raw, since render
// time may append optimization parameters that were never stored. Absolute
// URLs pointing at our own media path are reduced to that path so they
// compare equal to the stored blob URL.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() && strings.HasPrefix(u.Path, common.MediaPathPrefix) {
		return u.Path
	}
	return raw
}
