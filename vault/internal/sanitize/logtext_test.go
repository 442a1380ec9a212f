package sanitize

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "card saved", "card saved"},
		{"newline injection", "ok\nFAKE level=error", "ok FAKE level=error"},
		{"crlf and tab", "a\r\nb\tc", "a  b c"},
		{"unicode separators", "a\u2028b\u2029c", "a b c"},
		{"control chars dropped", "a\x00b\x1bc\x7f", "abc"},
		{"html metachars", `<b>"x"</b> 'y' ` + "`z`", "bx/b y z"},
		{"mustache template", "hi {{user.secret}}!", "hi !"},
		{"dollar template", "hi ${process.env}!", "hi !"},
		{"erb template", "hi <% system('x') %>!", "hi !"},
		{"ruby template", "hi #{`id`}!", "hi !"},
		{"eval", "eval(code) and Function (x)", "code) and x)"},
		{"nested eval", "evaeval(l(1)", "1)"},
		{"nested template", "{{{{x}}}}", "}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogText(tt.in, MaxMessageRunes))
		})
	}
}

func TestLogText_Truncates(t *testing.T) {
	out := LogText(strings.Repeat("é", 1500), MaxMessageRunes)
	assert.Equal(t, MaxMessageRunes, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))

	assert.Equal(t, "", LogText("abc", 0))
	assert.Equal(t, "ab", LogText("abc", 2))
}

func TestIsSensitiveKey(t *testing.T) {
	sensitive := []string{"password", "userPassword", "PASSWD", "token", "refresh_token", "secret", "session_id", "credentials", "apiKey", "api_key", "api-key", "private_key", "Cookie"}
	for _, k := range sensitive {
		assert.True(t, IsSensitiveKey(k), k)
	}

	plain := []string{"authorized", "resource", "operation", "user_id", "reason", "name"}
	for _, k := range plain {
		assert.False(t, IsSensitiveKey(k), k)
	}
}

func TestDetails(t *testing.T) {
	out := Details(map[string]any{
		"resource": "card-data",
		"password": "hunter2",
		"note":     "line1\nline2<script>",
		"count":    3,
		"long":     strings.Repeat("x", 500),
	})

	assert.Equal(t, "card-data", out["resource"])
	assert.Equal(t, Redacted, out["password"])
	assert.Equal(t, "line1 line2script", out["note"])
	assert.Equal(t, "3", out["count"])
	assert.Len(t, out["long"], MaxDetailRunes)
	assert.NotContains(t, out, TruncatedKey)
}

func TestDetails_CountCap(t *testing.T) {
	in := make(map[string]any)
	for i := 0; i < 25; i++ {
		in[fmt.Sprintf("k%02d", i)] = i
	}

	out := Details(in)
	require.Len(t, out, MaxDetailKeys+1)
	assert.Equal(t, "5 more entries", out[TruncatedKey])
	assert.Contains(t, out, "k00")
	assert.NotContains(t, out, "k24")
}

func TestDetails_Empty(t *testing.T) {
	assert.Nil(t, Details(nil))
}
