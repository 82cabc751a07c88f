package engine

import (
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

// User-Agent strings used across HTTP clients.
const (
	UserAgentChrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanHTML strips HTML tags and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// CleanCaption turns a raw timedtext line into plain text.
// Caption text is entity-encoded, sometimes twice (&amp;#39;), and may carry
// <font>/<i> markup.
func CleanCaption(s string) string {
	s = html.UnescapeString(s)
	s = CleanHTML(s)
	if strings.ContainsRune(s, '&') {
		s = html.UnescapeString(s)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}

// NormLangs trims and de-duplicates language codes (case-insensitively), keeping
// order and the first spelling seen. Empty entries are dropped.
func NormLangs(langs []string) []string {
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

// SplitLangs parses a comma-separated language list ("de, en") into NormLangs form.
func SplitLangs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormLangs(strings.Split(s, ","))
}
