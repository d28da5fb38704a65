package analysis

import "testing"

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text collapses whitespace",
			input:    "  hello \n\t  world  ",
			expected: "hello world",
		},
		{
			name:     "strips block tags without gluing words",
			input:    "<p>Hello</p><p>World</p>",
			expected: "Hello World",
		},
		{
			name:     "decodes ampersand last",
			input:    "<b>a &lt;b&gt; &amp;lt; c</b>",
			expected: "a <b> &lt; c",
		},
		{
			name:     "decodes quotes and nbsp",
			input:    "<i>&quot;it&#39;s&quot;&nbsp;fine</i>",
			expected: `"it's" fine`,
		},
		{
			name:     "json envelope with html field",
			input:    `{"html":"<div>Mitochondria&nbsp;rocks</div>","media":["a.png"]}`,
			expected: "Mitochondria rocks",
		},
		{
			name:     "json envelope with text field",
			input:    `{"text":"plain   body"}`,
			expected: "plain body",
		},
		{
			name:     "json without markup fields is treated as text",
			input:    `{"media":["a.png"]}`,
			expected: `{"media":["a.png"]}`,
		},
		{
			name:     "entities untouched in plain text",
			input:    "Tom &amp; Jerry",
			expected: "Tom &amp; Jerry",
		},
		{
			name:     "comparison operators are not tags",
			input:    "3 < 5 and 7 > 2",
			expected: "3 < 5 and 7 > 2",
		},
		{
			name:     "empty",
			input:    "   ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractText(tt.input)
			if got != tt.expected {
				t.Errorf("\nexpected: %q\ngot:      %q", tt.expected, got)
			}
		})
	}
}

func TestStripTags_SinglePass(t *testing.T) {
	got := stripTags("a<br/>b<img src=\"x.png\">c")
	if got != "a b c" {
		t.Errorf("expected %q, got %q", "a b c", got)
	}
}
