// Package textutil provides text extraction utilities for parsing LLM responses.
//
// LLMs return structured summaries as markdown with additional commentary,
// code fences, or uneven whitespace. This package pulls sections, bullet
// lists, and clean cut points out of such text.
package textutil

import "strings"

// StripCodeFences removes markdown code fence markers from a response.
// Handles patterns like ```markdown\n...\n``` or ```\n...\n```
func StripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```") {
		// Drop the fence line including any language tag
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		} else {
			trimmed = strings.TrimPrefix(trimmed, "```")
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}

// Section returns the body of a markdown section with the given heading,
// up to the next heading of the same or higher level. Matching is
// case-insensitive and tolerates "## Heading" and "## Heading:" forms.
// Returns "" if the heading is not present.
func Section(text, heading string) string {
	lines := strings.Split(text, "\n")
	want := strings.ToLower(strings.TrimSpace(heading))

	start := -1
	for i, line := range lines {
		name, ok := headingName(line)
		if ok && strings.ToLower(name) == want {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if _, ok := headingName(lines[i]); ok {
			end = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// headingName extracts the heading text from a markdown heading line.
func headingName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	name := strings.TrimLeft(trimmed, "#")
	if name == trimmed {
		return "", false
	}
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ":")
	return strings.TrimSpace(name), name != ""
}

// Bullets parses markdown bullet items ("- item" or "* item") from text,
// returning at most limit items. A limit of 0 means no cap.
func Bullets(text string, limit int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		var item string
		switch {
		case strings.HasPrefix(trimmed, "- "):
			item = strings.TrimSpace(trimmed[2:])
		case strings.HasPrefix(trimmed, "* "):
			item = strings.TrimSpace(trimmed[2:])
		default:
			continue
		}
		if item == "" {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items
}

// CutAtWordBoundary cuts text to at most maxChars characters, backing up
// to the last space so words are never split. If no space exists within
// the window the hard cut is returned.
func CutAtWordBoundary(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(text) <= maxChars {
		return text
	}

	cut := text[:maxChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
