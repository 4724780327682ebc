package notebook

import (
	"regexp"
	"strings"
)

const maxSlugLen = 100

var reIllegal = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Slug makes name safe to use as a single path element. Characters illegal
// on common filesystems become "_", surrounding dots and spaces are stripped
// and the result is capped at 100 characters.
func Slug(name string) string {
	s := reIllegal.ReplaceAllString(name, "_")
	s = strings.Trim(s, " .")
	if r := []rune(s); len(r) > maxSlugLen {
		s = strings.TrimRight(string(r[:maxSlugLen]), " .")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
