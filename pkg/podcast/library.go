// Package podcast keeps downloaded audio overviews in a library directory.
// Every audio file is named from its title and carries a sidecar
// <stem>_metadata.json describing where it came from.
package podcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/deepdiver/pkg/logging"
)

// DefaultPattern names files after the title and the time they were saved.
const DefaultPattern = "{title}_{timestamp}"

const (
	metadataSuffix = "_metadata.json"
	maxTitleLength = 100
	minAudioSize   = 1024
)

var (
	// ErrNotFound is returned for a file that is not in the library.
	ErrNotFound = errors.New("podcast: not found")

	audioFiles     = glob.MustCompile("*.{mp3,m4a,wav}")
	patternToken   = regexp.MustCompile(`\{[^{}]*\}`)
	patternTokens  = map[string]bool{"{title}": true, "{timestamp}": true, "{date}": true, "{time}": true}
	invalidInTitle = strings.NewReplacer("<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_")
)

// Metadata is the sidecar document stored next to each audio file.
type Metadata struct {
	Title        string            `json:"title"`
	NotebookID   string            `json:"notebook_id,omitempty"`
	ArtifactID   string            `json:"artifact_id,omitempty"`
	Duration     string            `json:"media_duration,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
	Sources      []string          `json:"sources,omitempty"`
	SourceFile   string            `json:"source_file"`
	SavedFile    string            `json:"saved_file"`
	FileSize     int64             `json:"file_size"`
	CreatedAt    time.Time         `json:"created_at"`
	QualityCheck Quality           `json:"quality_check"`
}

// Quality records the basic checks run on a saved file.
type Quality struct {
	FileSize    int64 `json:"file_size"`
	HasContent  bool  `json:"has_content"`
	FormatValid bool  `json:"format_valid"`
}

// Podcast is one audio file in the library. Metadata is nil when the
// sidecar is missing or unreadable.
type Podcast struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Library manages the audio files of one directory.
type Library struct {
	dir     string
	pattern string
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the library's logger.
func WithLogger(l *logging.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// WithPattern sets the naming pattern. Empty keeps DefaultPattern.
func WithPattern(p string) Option {
	return func(lib *Library) {
		if p != "" {
			lib.pattern = p
		}
	}
}

// WithNow replaces the library's time source.
func WithNow(now func() time.Time) Option {
	return func(lib *Library) { lib.now = now }
}

// ValidatePattern checks that p only uses the known tokens and names
// something.
func ValidatePattern(p string) error {
	for _, tok := range patternToken.FindAllString(p, -1) {
		if !patternTokens[tok] {
			return fmt.Errorf("unknown token %s in naming pattern (use {title}, {timestamp}, {date} or {time})", tok)
		}
	}
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("naming pattern is empty")
	}
	return nil
}

// NewLibrary opens the library in dir, creating it if needed.
func NewLibrary(dir string, opts ...Option) (*Library, error) {
	lib := &Library{dir: dir, pattern: DefaultPattern, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(lib)
	}
	if err := ValidatePattern(lib.pattern); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create podcast directory: %w", err)
	}
	return lib, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// CleanTitle makes title safe to use in a file name: reserved characters
// become underscores, whitespace runs collapse to one underscore and the
// result is cut to 100 characters.
func CleanTitle(title string) string {
	clean := strings.Join(strings.Fields(invalidInTitle.Replace(title)), "_")
	if r := []rune(clean); len(r) > maxTitleLength {
		clean = string(r[:maxTitleLength])
	}
	if clean == "" {
		return "podcast"
	}
	return clean
}

// Filename names an audio file for title saved at at. ext includes the dot;
// empty means ".mp3".
func (l *Library) Filename(title string, at time.Time, ext string) string {
	if ext == "" {
		ext = ".mp3"
	}
	name := strings.NewReplacer(
		"{title}", CleanTitle(title),
		"{timestamp}", at.Format("20060102_150405"),
		"{date}", at.Format("20060102"),
		"{time}", at.Format("150405"),
	).Replace(l.pattern)
	return name + ext
}

// Save moves the downloaded file at src into the library under a name built
// from md.Title and writes its sidecar. The returned podcast carries the
// completed metadata.
func (l *Library) Save(src string, md Metadata) (*Podcast, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", src)
	}

	now := l.now()
	ext := strings.ToLower(filepath.Ext(src))
	if !audioFiles.Match("x" + ext) {
		ext = ".mp3"
	}
	dst := l.unusedPath(l.Filename(md.Title, now, ext))
	if err := moveFile(src, dst); err != nil {
		return nil, err
	}
	if err := os.Chtimes(dst, now, now); err != nil {
		l.logger.Warnf("failed to stamp %s: %v", dst, err)
	}

	quality, err := checkQuality(dst)
	if err != nil {
		l.logger.Warnf("quality check failed for %s: %v", dst, err)
	}
	md.SourceFile = src
	md.SavedFile = dst
	md.FileSize = quality.FileSize
	md.CreatedAt = now
	md.QualityCheck = quality
	if err := writeMetadata(metadataPath(dst), md); err != nil {
		return nil, err
	}
	if !quality.FormatValid {
		l.logger.Warnf("%s does not look like an audio file", dst)
	}
	l.logger.Infof("saved podcast %q to %s", md.Title, dst)

	return &Podcast{
		Filename: filepath.Base(dst),
		Path:     dst,
		Size:     quality.FileSize,
		Modified: now,
		Metadata: &md,
	}, nil
}

// List returns every audio file in the library, newest first.
func (l *Library) List() ([]Podcast, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	var out []Podcast
	for _, e := range entries {
		if e.IsDir() || !audioFiles.Match(e.Name()) {
			continue
		}
		p, err := l.load(e.Name())
		if err != nil {
			l.logger.Warnf("skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Modified.Equal(out[k].Modified) {
			return out[i].Filename > out[k].Filename
		}
		return out[i].Modified.After(out[k].Modified)
	})
	return out, nil
}

// Info returns one podcast by file name.
func (l *Library) Info(filename string) (*Podcast, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	return l.load(filename)
}

// Delete removes a podcast and its sidecar.
func (l *Library) Delete(filename string) error {
	if err := checkName(filename); err != nil {
		return err
	}
	path := filepath.Join(l.dir, filename)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	if err := os.Remove(metadataPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata of %s: %w", filename, err)
	}
	l.logger.Infof("deleted podcast %s", filename)
	return nil
}

// Cleanup deletes podcasts last modified more than maxAge ago and returns
// how many were removed.
func (l *Library) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be positive")
	}
	podcasts, err := l.List()
	if err != nil {
		return 0, err
	}
	cutoff := l.now().Add(-maxAge)
	deleted := 0
	for _, p := range podcasts {
		if !p.Modified.Before(cutoff) {
			continue
		}
		if err := l.Delete(p.Filename); err != nil {
			return deleted, err
		}
		deleted++
	}
	l.logger.Infof("cleaned up %d old podcasts", deleted)
	return deleted, nil
}

func (l *Library) load(filename string) (*Podcast, error) {
	path := filepath.Join(l.dir, filename)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p := &Podcast{Filename: filename, Path: path, Size: info.Size(), Modified: info.ModTime()}
	md, err := readMetadata(metadataPath(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		l.logger.Warnf("unreadable metadata for %s: %v", filename, err)
	default:
		p.Metadata = md
	}
	return p, nil
}

// unusedPath returns dir/name, or dir/name with a numeric suffix when a
// file of that name already exists.
func (l *Library) unusedPath(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(l.dir, name)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(l.dir, stem+"_"+strconv.Itoa(i)+ext)
	}
}

func checkName(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("invalid podcast file name %q", filename)
	}
	return nil
}

func metadataPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + metadataSuffix
}

// checkQuality reports the size of path and whether it starts like an audio
// file: an ID3 tag, an MPEG frame sync, a RIFF header or an MP4 box.
func checkQuality(path string) (Quality, error) {
	f, err := os.Open(path)
	if err != nil {
		return Quality{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Quality{}, err
	}
	q := Quality{FileSize: info.Size(), HasContent: info.Size() > minAudioSize}

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return q, err
	}
	header = header[:n]
	switch {
	case bytes.HasPrefix(header, []byte("ID3")):
		q.FormatValid = true
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		q.FormatValid = true
	case bytes.HasPrefix(header, []byte("RIFF")):
		q.FormatValid = true
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		q.FormatValid = true
	}
	return q, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func writeMetadata(path string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode podcast metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write podcast metadata: %w", err)
	}
	return nil
}

func readMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, err
	}
	return &md, nil
}
