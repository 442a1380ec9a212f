package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutput_Contexts(t *testing.T) {
	tests := []struct {
		name string
		in   any
		ctx  Context
		want string
	}{
		{"nil", nil, HTML, ""},
		{"html entities", `a&b<c>"d'e/f` + "`g=h", HTML, "a&amp;b&lt;c&gt;&quot;d&#x27;e&#x2F;f&#x60;g&#x3D;h"},
		{"attribute subset", `a&b<c>"d'e/f=g`, Attribute, "a&amp;b&lt;c&gt;&quot;d&#x27;e/f=g"},
		{"javascript quotes", `it's "x" \ y`, JavaScript, `it\'s \"x\" \\ y`},
		{"javascript control", "a\nb\rc\td\x01", JavaScript, `a\nb\rc\td\u0001`},
		{"javascript separators", "a\u2028b\u2029c", JavaScript, `a\u2028b\u2029c`},
		{"css", `<a>"b"'c'&`, CSS, `\3C a\3E \22 b\22 \27 c\27 \26 `},
		{"text passthrough", `<b>bold</b> & more`, Text, `<b>bold</b> & more`},
		{"unknown context is html", "<b>", Context("xml"), "&lt;b&gt;"},
		{"number", 42, HTML, "42"},
		{"bool", true, Text, "true"},
		{"error", errors.New("x<y"), HTML, "x&lt;y"},
		{"map", map[string]string{"a": "b"}, Text, `{"a":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Output(tt.in, tt.ctx))
		})
	}
}

func TestOutput_BlocksMalicious(t *testing.T) {
	inputs := []string{
		"<script>alert(1)</script>",
		"<SCRIPT src=x>",
		"</script>",
		"< iframe src=x>",
		"<object data=x>",
		"<embed src=x>",
		"javascript:alert(1)",
		"JaVaScRiPt :void(0)",
		"vbscript:msgbox",
		"data:text/html;base64,AAAA",
		`<img src=x onerror="alert(1)">`,
		"<body onload = go()>",
	}

	for _, in := range inputs {
		for _, ctx := range []Context{HTML, Attribute, JavaScript, CSS, Text} {
			assert.Equal(t, Blocked, Output(in, ctx), "%q in %s", in, ctx)
		}
	}
}

func TestOutput_TooLarge(t *testing.T) {
	assert.Equal(t, BlockedTooLarge, Output(strings.Repeat("a", MaxInputBytes+1), HTML))
	assert.Len(t, Output(strings.Repeat("a", MaxInputBytes), Text), MaxInputBytes)
}

func TestParseContext(t *testing.T) {
	assert.Equal(t, JavaScript, ParseContext("JavaScript"))
	assert.Equal(t, CSS, ParseContext(" css "))
	assert.Equal(t, Text, ParseContext("text"))
	assert.Equal(t, HTML, ParseContext("markdown"))
	assert.Equal(t, HTML, ParseContext(""))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "abc", Stringify([]byte("abc")))
	assert.Equal(t, "ff00", Stringify([]byte{0xff, 0x00}))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, `["a","b"]`, Stringify([]string{"a", "b"}))
}
