// Package mediaref finds media URLs embedded in post content and
// normalizes them for matching against stored media records.
package mediaref

import (
	"iter"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markdownImage matches ![alt](url) and ![alt](url "title").
var markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(\s*<?([^\s)>]+)>?(?:\s+"[^"]*")?\s*\)`)

// mediaAttrs lists, per element, the attributes that embed a resource.
var mediaAttrs = map[atom.Atom][]string{
	atom.Img:    {"src"},
	atom.Video:  {"src", "poster"},
	atom.Audio:  {"src"},
	atom.Source: {"src"},
}

// Extract yields every media URL embedded in content in document order.
// Duplicates are kept. Both HTML media elements and markdown image syntax
// are recognized. Parsing is lazy: stopping the iteration stops the scan.
func Extract(content string) iter.Seq[string] {
	return func(yield func(string) bool) {
		z := html.NewTokenizer(strings.NewReader(content))
		for {
			switch z.Next() {
			case html.ErrorToken:
				return
			case html.TextToken:
				for _, m := range markdownImage.FindAllStringSubmatch(string(z.Text()), -1) {
					if !yield(m[1]) {
						return
					}
				}
			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				attrs, ok := mediaAttrs[tok.DataAtom]
				if !ok {
					continue
				}
				for _, name := range attrs {
					for _, a := range tok.Attr {
						if a.Namespace == "" && a.Key == name && strings.TrimSpace(a.Val) != "" {
							if !yield(strings.TrimSpace(a.Val)) {
								return
							}
						}
					}
				}
			}
		}
	}
}

// First returns the first media URL in content, or "" when there is none.
func First(content string) string {
	for u := range Extract(content) {
		return u
	}
	return ""
}

// References returns the distinct normalized URLs embedded in content, in
// order of first appearance.
func References(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for u := range Extract(content) {
		n := Normalize(u)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Dropped returns the references of before that are absent from after.
func Dropped(before, after string) []string {
	keep := make(map[string]struct{})
	for _, u := range References(after) {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range References(before) {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
