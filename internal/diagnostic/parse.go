package diagnostic

import (
	"strings"
	"unicode"
)

type section int

const (
	sectionNone section = iota
	sectionWhat
	sectionWhy
	sectionDo
	sectionCheck
)

// Headers are found by case-insensitive substring. The text before the
// phrase may only be decoration, numbering or a "section N" label, so prose
// that mentions a phrase is not taken for a header.
var sectionHeaders = []struct {
	phrase  string
	ordinal string
	id      section
}{
	{"what is happening", "section 1", sectionWhat},
	{"why this is happening", "section 2", sectionWhy},
	{"what to do now", "section 3", sectionDo},
	{"what to check next", "section 4", sectionCheck},
}

// ParseSections splits a model reply into the four named sections. Lines
// before the first header are dropped. malformed reports that no header
// was found at all.
func ParseSections(raw string) (s Sections, malformed bool) {
	var (
		current section
		found   bool
		buf     = map[section][]string{}
	)

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if id, rest, ok := matchHeader(line); ok {
			current, found = id, true
			if rest != "" {
				buf[current] = append(buf[current], rest)
			}
			continue
		}
		if current != sectionNone {
			buf[current] = append(buf[current], line)
		}
	}

	if !found {
		return Sections{}, true
	}
	s.WhatIsHappening = joinSection(buf[sectionWhat])
	s.WhyThisIsHappening = joinSection(buf[sectionWhy])
	s.WhatToDoNow = joinSection(buf[sectionDo])
	s.WhatToCheckNext = joinSection(buf[sectionCheck])
	return s, false
}

// headerTrail is the decoration that may follow a header phrase.
const headerTrail = ":?!*_#-.)\u2013\u2014 \t"

// matchHeader reports whether line opens a section. Text after the header
// on the same line ("**What is happening:** Line A01 stopped") is returned
// as rest.
func matchHeader(line string) (section, string, bool) {
	trimmed := strings.TrimSpace(line)
	lower := asciiLower(trimmed)

	for _, h := range sectionHeaders {
		idx := strings.Index(lower, h.phrase)
		if idx < 0 || !decorationOnly(lower[:idx]) {
			continue
		}
		if rest, ok := headerRest(trimmed[idx+len(h.phrase):]); ok {
			return h.id, rest, true
		}
	}

	// Bare "Section N" labels.
	bare := strings.TrimLeft(lower, "#*_> \t")
	for _, h := range sectionHeaders {
		if !strings.HasPrefix(bare, h.ordinal) {
			continue
		}
		tail := trimmed[len(trimmed)-len(bare)+len(h.ordinal):]
		if tail != "" && unicode.IsDigit(rune(tail[0])) {
			continue
		}
		if rest, ok := headerRest(tail); ok {
			return h.id, rest, true
		}
	}
	return sectionNone, "", false
}

// headerRest strips the decoration after a header phrase. Text that follows
// the phrase with nothing but spaces in between ("What is happening on A01
// is a jam") is prose, not a header.
func headerRest(tail string) (string, bool) {
	after := strings.TrimLeft(tail, headerTrail)
	if after != "" && strings.TrimSpace(tail[:len(tail)-len(after)]) == "" {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// decorationOnly reports whether prefix holds no words other than
// "section". Markdown, list numbering and emoji pass.
func decorationOnly(prefix string) bool {
	for _, r := range strings.ReplaceAll(prefix, "section", "") {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// asciiLower lowercases ASCII letters only, so byte offsets in the result
// line up with the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func joinSection(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
