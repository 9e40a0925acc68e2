// Package content normalizes free text attached to listings.
package content

import (
	"regexp"
	"strings"
)

const (
	minHashtagLen = 2
	maxHashtagLen = 50
)

var (
	hashtagPattern    = regexp.MustCompile(`#(\w+)`)
	nonHashtagPattern = regexp.MustCompile(`[^a-z0-9_]+`)
)

// Processed is text with its normalized hashtags.
type Processed struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

// ExtractHashtags returns the #-prefixed word tokens in text, lower-cased and
// de-duplicated in first-seen order.
func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// CleanHashtags normalizes user-supplied tags: trim, lower-case, drop a
// leading '#', strip anything outside [a-z0-9_], keep lengths in [2,50] and
// de-duplicate in first-seen order.
func CleanHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		tag = strings.TrimLeft(tag, "#")
		tag = nonHashtagPattern.ReplaceAllString(tag, "")
		if len(tag) < minHashtagLen || len(tag) > maxHashtagLen {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ProcessContent trims text and returns it with its cleaned hashtags.
func ProcessContent(text string) Processed {
	trimmed := strings.TrimSpace(text)
	return Processed{
		Content:  trimmed,
		Hashtags: CleanHashtags(ExtractHashtags(trimmed)),
	}
}

// MergeHashtags appends cleaned extra tags to base, keeping base order and
// dropping duplicates.
func MergeHashtags(base []string, extra ...[]string) []string {
	all := append([]string{}, base...)
	for _, tags := range extra {
		all = append(all, tags...)
	}
	return CleanHashtags(all)
}
