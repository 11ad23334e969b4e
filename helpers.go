package blogvault

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Slugify converts a title to a URL-safe slug. Characters outside a-z0-9
// collapse into single hyphens; anything fully non-Latin yields "".
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

var slugRe = regexp.MustCompile(`^[a-z0-9-]+$`)

func isValidSlug(slug string) bool {
	return slugRe.MatchString(slug)
}

// sanitizeSlug keeps a valid caller-supplied slug, otherwise derives one
// from the title. Titles that slugify to nothing (e.g. CJK-only) fall back
// to an id-based slug so the post stays addressable.
func sanitizeSlug(slug, title, id string) string {
	if isValidSlug(slug) {
		return slug
	}
	if s := Slugify(title); s != "" {
		return s
	}
	if id != "" {
		return "post-" + id
	}
	return fmt.Sprintf("post-%d", time.Now().UnixMilli())
}

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	htmlImageRe     = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
)

// extractImageURLs collects every image URL referenced from post content,
// in both Markdown and inline HTML syntax. Post deletion uses this to find
// the images it owns.
func extractImageURLs(content string) []string {
	var urls []string
	for _, m := range markdownImageRe.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			urls = append(urls, m[1])
		}
	}
	for _, m := range htmlImageRe.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			urls = append(urls, m[1])
		}
	}
	return urls
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
