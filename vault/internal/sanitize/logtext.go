package sanitize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Caps applied to secure log output.
const (
	MaxMessageRunes = 1000
	MaxDetailRunes  = 200
	MaxDetailKeys   = 20

	Redacted     = "[REDACTED]"
	TruncatedKey = "_truncated"
)

var (
	templatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)\{\{.*?\}\}`),
		regexp.MustCompile(`(?s)\$\{.*?\}`),
		regexp.MustCompile(`(?s)<%.*?%>`),
		regexp.MustCompile(`(?s)#\{.*?\}`),
	}
	codeExecPattern = regexp.MustCompile(`(?i)(eval|Function)\s*\(`)
	htmlMetaChars   = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "`", "")

	// "auth" alone is deliberately absent so decision fields such as
	// "authorized" stay readable.
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|token|secret|session|credential|api[-_]?key|private[-_]?key|cookie)`)
)

// LogText neutralises s for inclusion in a log line and truncates it to
// maxRunes. Line breaks become spaces; other control characters are dropped.
func LogText(s string, maxRunes int) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', '\v', '\f', '\u0085', '\u2028', '\u2029':
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Removal can splice fragments into a new match, so repeat until stable.
	for {
		before := s
		for _, p := range templatePatterns {
			s = p.ReplaceAllString(s, "")
		}
		s = codeExecPattern.ReplaceAllString(s, "")
		s = htmlMetaChars.Replace(s)
		if s == before {
			break
		}
	}

	return truncateRunes(s, maxRunes)
}

// IsSensitiveKey reports whether a detail key names secret material.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}

// Details sanitises a structured detail map. Keys are processed in sorted
// order; entries beyond MaxDetailKeys are counted under TruncatedKey.
func Details(details map[string]any) map[string]string {
	if len(details) == 0 {
		return nil
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, min(len(keys), MaxDetailKeys)+1)
	for i, k := range keys {
		if i >= MaxDetailKeys {
			out[TruncatedKey] = fmt.Sprintf("%d more entries", len(keys)-MaxDetailKeys)
			break
		}
		cleanKey := LogText(k, MaxDetailRunes)
		if IsSensitiveKey(k) {
			out[cleanKey] = Redacted
			continue
		}
		out[cleanKey] = LogText(Stringify(details[k]), MaxDetailRunes)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
