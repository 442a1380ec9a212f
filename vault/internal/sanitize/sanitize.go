// Package sanitize implements context-aware output escaping and log-text
// neutralisation. Every function is pure.
package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Context names the sink an output string is destined for.
type Context string

const (
	HTML       Context = "html"
	Attribute  Context = "attribute"
	JavaScript Context = "javascript"
	CSS        Context = "css"
	Text       Context = "text"
)

// ParseContext maps a name to a Context. Unknown names map to HTML, the
// strictest escaping.
func ParseContext(name string) Context {
	switch c := Context(strings.ToLower(strings.TrimSpace(name))); c {
	case HTML, Attribute, JavaScript, CSS, Text:
		return c
	}
	return HTML
}

const (
	// Blocked replaces any input matching a malicious pattern.
	Blocked = "[BLOCKED: potentially malicious content]"
	// BlockedTooLarge replaces inputs over MaxInputBytes.
	BlockedTooLarge = "[BLOCKED: input too large]"

	MaxInputBytes = 1 << 20
)

var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	regexp.MustCompile(`(?i)<\s*object`),
	regexp.MustCompile(`(?i)<\s*embed`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
}

// IsMalicious reports whether s matches any malicious-content pattern.
func IsMalicious(s string) bool {
	for _, p := range maliciousPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	htmlReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"/", "&#x2F;",
		"`", "&#x60;",
		"=", "&#x3D;",
	)
	attributeReplacer = strings.NewReplacer(
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&#x27;",
		"<", "&lt;",
		">", "&gt;",
	)
	cssReplacer = strings.NewReplacer(
		"<", `\3C `,
		">", `\3E `,
		`"`, `\22 `,
		"'", `\27 `,
		"&", `\26 `,
	)
)

// Output coerces data to a string and escapes it for ctx. Malicious input is
// replaced by Blocked whatever the context.
func Output(data any, ctx Context) string {
	if data == nil {
		return ""
	}
	s := Stringify(data)
	if len(s) > MaxInputBytes {
		return BlockedTooLarge
	}
	if IsMalicious(s) {
		return Blocked
	}

	switch ctx {
	case Attribute:
		return attributeReplacer.Replace(s)
	case JavaScript:
		return escapeJS(s)
	case CSS:
		return cssReplacer.Replace(s)
	case Text:
		return s
	default:
		return htmlReplacer.Replace(s)
	}
}

// EscapeHTML applies the html transform without the malicious pre-check.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

func escapeJS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Stringify coerces a value to text. Scalars use their natural form,
// composite values are JSON encoded.
func Stringify(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		if utf8.Valid(v) {
			return string(v)
		}
		return fmt.Sprintf("%x", v)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(b)
}
