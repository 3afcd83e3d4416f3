package blogservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMarkdown(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no script tag",
			input: "Hello, World!",
			want:  "Hello, World!",
		},
		{
			name:  "script tag",
			input: "<script>alert(1);</script>",
			want:  "",
		},
		{
			name:  "multiple script tags",
			input: "Here is some text.\n<script>alert(1);</script>\nMore text.\n<SCRIPT SRC=\"evil.js\"></SCRIPT>",
			want:  "Here is some text.\n\nMore text.\n",
		},
		{
			name:  "event handler attribute",
			input: `<p onclick="steal()">hi</p>`,
			want:  "<p>hi</p>",
		},
		{
			name:  "formatting kept",
			input: "<strong>bold</strong> and <em>italic</em>",
			want:  "<strong>bold</strong> and <em>italic</em>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output := sanitizeMarkdown(tc.input)
			assert.Equal(t, tc.want, output)
		})
	}
}
