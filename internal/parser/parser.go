// Package parser extracts [[wiki-style]] references and fallback titles from
// capture content.
package parser

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxTitleRunes caps a title derived from the first line of content.
const MaxTitleRunes = 100

// referenceRe matches [[...]] with no closing bracket inside. The first "]]"
// terminates the marker; nested brackets are not supported.
var referenceRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// References yields each distinct reference title in content, trimmed, in
// first-seen order. Duplicates are detected by exact string match and blank
// markers are skipped. The sequence is lazy and can be ranged over any number
// of times.
func References(content string) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		rest := content
		for {
			loc := referenceRe.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			title := strings.TrimSpace(rest[loc[2]:loc[3]])
			rest = rest[loc[1]:]
			if title == "" {
				continue
			}
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
			if !yield(title) {
				return
			}
		}
	}
}

// ParseReferences collects References into a slice.
func ParseReferences(content string) []string {
	return slices.Collect(References(content))
}

// Marker renders the reference token for title.
func Marker(title string) string {
	return "[[" + title + "]]"
}

// CanReference reports whether title survives a round trip through Marker and
// References unchanged.
func CanReference(title string) bool {
	return title != "" && strings.TrimSpace(title) == title && !strings.Contains(title, "]")
}

// ContainsReference reports whether the literal marker for title appears in content.
func ContainsReference(content, title string) bool {
	return strings.Contains(content, Marker(title))
}

// AppendReference adds the marker for title on a new trailing line.
func AppendReference(content, title string) string {
	return strings.TrimRight(content, " \t\r\n") + "\n" + Marker(title)
}

// RemoveReferences deletes every marker whose trimmed title satisfies match.
// A line that held nothing but removed markers is dropped entirely.
func RemoveReferences(content string, match func(title string) bool) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		changed := false
		stripped := referenceRe.ReplaceAllStringFunc(line, func(m string) string {
			sub := referenceRe.FindStringSubmatch(m)
			if match(strings.TrimSpace(sub[1])) {
				changed = true
				return ""
			}
			return m
		})
		if changed && strings.TrimSpace(stripped) == "" {
			continue
		}
		if changed {
			stripped = strings.TrimRight(stripped, " \t")
		}
		out = append(out, stripped)
	}
	return strings.TrimRight(strings.Join(out, "\n"), " \t\r\n")
}

// TitleFromContent returns the first line of content, trimmed and capped at
// MaxTitleRunes.
func TitleFromContent(content string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	first = strings.TrimSpace(first)
	if utf8.RuneCountInString(first) <= MaxTitleRunes {
		return first
	}
	r := []rune(first)
	return strings.TrimSpace(string(r[:MaxTitleRunes]))
}
