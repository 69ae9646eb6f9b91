package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "title and paragraphs",
			html:      `<html><head><title> Report </title></head><body><p>One</p><p>Two</p></body></html>`,
			wantTitle: "Report",
			wantBody:  "One\nTwo",
		},
		{
			name:     "inline elements stay on one line",
			html:     `<p>Read <b>this</b> and <a href="#">that</a>.</p>`,
			wantBody: "Read this and that .",
		},
		{
			name:     "hidden content removed",
			html:     `<body><noscript>enable js</noscript><svg><text>icon</text></svg><div>kept</div><template><p>later</p></template></body>`,
			wantBody: "kept",
		},
		{
			name:     "table cells split",
			html:     `<table><tr><td>a</td><td>b</td></tr></table>`,
			wantBody: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToText(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Equal(t, tt.wantBody, got.Body)
		})
	}
}
