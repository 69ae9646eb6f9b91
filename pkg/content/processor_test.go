package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newProcessor(t *testing.T, maxSize string) (*Processor, string) {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "tmp")
	p, err := NewProcessor(nil, maxSize, tmp, nil)
	require.NoError(t, err)
	return p, tmp
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "50MB", want: 50 << 20},
		{in: "1.5 gb", want: 3 << 29},
		{in: "10KB", want: 10 << 10},
		{in: "512B", want: 512},
		{in: "2048", want: 2048},
		{in: "lots", wantErr: true},
		{in: "-1MB", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512.0B", FormatSize(512))
	assert.Equal(t, "1.5KB", FormatSize(1536))
	assert.Equal(t, "50.0MB", FormatSize(50<<20))
}

func TestValidate(t *testing.T) {
	p, _ := newProcessor(t, "1KB")
	dir := t.TempDir()

	ok := p.Validate(writeFile(t, dir, "notes.md", "# Notes"))
	assert.True(t, ok.OK())
	assert.Equal(t, "md", ok.Format)
	assert.Equal(t, int64(7), ok.Size)

	missing := p.Validate(filepath.Join(dir, "missing.txt"))
	assert.Equal(t, []string{"file not found"}, missing.Errors)

	unsupported := p.Validate(writeFile(t, dir, "image.png", "x"))
	require.False(t, unsupported.OK())
	assert.Contains(t, unsupported.Errors[0], `unsupported file format "png"`)
	assert.Contains(t, unsupported.Errors[0], "docx, html, md, pdf, txt")

	large := p.Validate(writeFile(t, dir, "big.txt", strings.Repeat("a", 2048)))
	require.False(t, large.OK())
	assert.Contains(t, large.Errors[0], "file too large: 2.0KB (maximum 1KB)")

	badPDF := p.Validate(writeFile(t, dir, "broken.pdf", "not a pdf"))
	require.False(t, badPDF.OK())
	assert.Contains(t, badPDF.Errors[0], "not a valid PDF")
	assert.Error(t, badPDF.Err())

	assert.False(t, p.Validate(dir).OK())
}

func TestPrepare_HTMLBecomesText(t *testing.T) {
	p, tmp := newProcessor(t, "")
	src := writeFile(t, t.TempDir(), "article.html", `<html><head><title>Field Notes</title><style>p{}</style></head>
<body><h1>Findings</h1><script>track()</script><p>First   paragraph	continues.</p><ul><li>one</li><li>two</li></ul><!-- hidden --></body></html>`)

	prepared, err := p.Prepare(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "processed_article.txt"), prepared.Path)
	assert.Equal(t, src, prepared.Original)

	data, err := os.ReadFile(prepared.Path)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes\n\nFindings\nFirst paragraph continues.\none\ntwo", string(data))

	removed, err := p.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestPrepare_TextUsedAsIs(t *testing.T) {
	p, _ := newProcessor(t, "")
	src := writeFile(t, t.TempDir(), "notes.txt", "plain")

	prepared, err := p.Prepare(src)
	require.NoError(t, err)
	assert.Equal(t, src, prepared.Path)
	assert.Equal(t, []string{"validated", "txt file ready for upload"}, prepared.Steps)
}

func TestPrepare_InvalidFile(t *testing.T) {
	p, _ := newProcessor(t, "")
	_, err := p.Prepare(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "file not found")
}

func TestCleanup_MissingDir(t *testing.T) {
	p, _ := newProcessor(t, "")
	n, err := p.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewProcessor_InvalidSize(t *testing.T) {
	_, err := NewProcessor(nil, "huge", t.TempDir(), nil)
	assert.ErrorContains(t, err, "invalid size")
}
