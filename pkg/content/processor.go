// Package content checks and prepares source documents before they are
// uploaded to a notebook.
package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultFormats are the file extensions accepted for upload.
var DefaultFormats = []string{"pdf", "docx", "txt", "md", "html"}

// DefaultMaxSize is the default upload size limit.
const DefaultMaxSize = "50MB"

// Validation is the result of checking one file.
type Validation struct {
	Path   string
	Format string
	Size   int64
	Pages  int
	Errors []string
}

// OK reports whether the file may be uploaded.
func (v Validation) OK() bool {
	return len(v.Errors) == 0
}

// Err returns the validation errors as one error, or nil.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("%s: %s", v.Path, strings.Join(v.Errors, "; "))
}

// Prepared describes a file ready for upload.
type Prepared struct {
	Original   string
	Path       string
	Validation Validation
	Steps      []string
}

// Processor validates and prepares documents.
type Processor struct {
	formats map[string]bool
	maxSize int64
	limit   string
	tempDir string
	logger  *logging.Logger
}

// NewProcessor creates a processor. maxSize uses units like "50MB".
func NewProcessor(formats []string, maxSize, tempDir string, logger *logging.Logger) (*Processor, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	if maxSize == "" {
		maxSize = DefaultMaxSize
	}
	limit, err := ParseSize(maxSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	p := &Processor{
		formats: make(map[string]bool, len(formats)),
		maxSize: limit,
		limit:   maxSize,
		tempDir: tempDir,
		logger:  logger,
	}
	for _, f := range formats {
		p.formats[strings.ToLower(strings.TrimPrefix(f, "."))] = true
	}
	return p, nil
}

// Validate checks that path exists, has a supported format, is within the
// size limit and is readable. PDFs must also parse.
func (p *Processor) Validate(path string) Validation {
	v := Validation{Path: path, Format: strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			v.Errors = append(v.Errors, "file not found")
		} else {
			v.Errors = append(v.Errors, fmt.Sprintf("cannot stat file: %v", err))
		}
		return v
	}
	if info.IsDir() {
		v.Errors = append(v.Errors, "path is a directory")
		return v
	}
	v.Size = info.Size()

	if !p.formats[v.Format] {
		v.Errors = append(v.Errors, fmt.Sprintf("unsupported file format %q (supported: %s)", v.Format, strings.Join(p.Formats(), ", ")))
		return v
	}
	if v.Size > p.maxSize {
		v.Errors = append(v.Errors, fmt.Sprintf("file too large: %s (maximum %s)", FormatSize(v.Size), p.limit))
		return v
	}
	if err := checkReadable(path); err != nil {
		v.Errors = append(v.Errors, fmt.Sprintf("file not readable: %v", err))
		return v
	}

	if v.Format == "pdf" {
		pages, err := api.PageCountFile(path)
		if err != nil {
			v.Errors = append(v.Errors, fmt.Sprintf("not a valid PDF: %v", err))
			return v
		}
		v.Pages = pages
	}
	return v
}

// Prepare validates path and converts it to an upload-ready file. HTML is
// reduced to plain text in the temp directory; other formats are used as is.
func (p *Processor) Prepare(path string) (*Prepared, error) {
	v := p.Validate(path)
	if err := v.Err(); err != nil {
		return nil, err
	}
	out := &Prepared{Original: path, Path: path, Validation: v, Steps: []string{"validated"}}

	if v.Format != "html" {
		out.Steps = append(out.Steps, v.Format+" file ready for upload")
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	text, err := HTMLToText(f)
	if err != nil {
		p.logger.Warnf("html conversion failed, uploading original %s: %v", path, err)
		out.Steps = append(out.Steps, "html conversion failed, using original")
		return out, nil
	}

	if err := os.MkdirAll(p.tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	target := filepath.Join(p.tempDir, "processed_"+base+".txt")

	body := text.Body
	if text.Title != "" {
		body = text.Title + "\n\n" + body
	}
	if err := os.WriteFile(target, []byte(body), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", target, err)
	}
	out.Path = target
	out.Steps = append(out.Steps, "html converted to text")
	p.logger.Infof("prepared %s as %s", path, target)
	return out, nil
}

// Cleanup removes the files in the temp directory and returns how many were
// removed.
func (p *Processor) Cleanup() (int, error) {
	entries, err := os.ReadDir(p.tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list temp directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(p.tempDir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Formats returns the accepted formats in sorted order.
func (p *Processor) Formats() []string {
	out := make([]string, 0, len(p.formats))
	for f := range p.formats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, 1024)
	if _, err := f.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses sizes like "50MB", "1.5 GB" or "512".
func ParseSize(s string) (int64, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(norm, u.suffix) {
			norm = strings.TrimSpace(strings.TrimSuffix(norm, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseFloat(norm, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n * float64(mult)), nil
}

// FormatSize renders a byte count in the largest fitting unit.
func FormatSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f%s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1fTB", size)
}
