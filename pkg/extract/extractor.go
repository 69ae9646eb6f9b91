// Package extract reads artifact metadata out of an HTML snapshot of a
// finished artifact's container.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Unknown is stored for optional fields the UI did not expose.
const Unknown = "unknown"

// Metadata describes one generated artifact. Optional string fields hold
// Unknown when the container does not show them; Tags is empty instead.
type Metadata struct {
	Kind          string
	ArtifactID    string
	Title         string
	MediaDuration string
	Thumbnail     string
	ItemCount     string
	Tags          []string
}

// ExtractionError is returned when the snapshot does not carry the
// artifact's opaque identifier.
type ExtractionError struct {
	Kind   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s metadata: %s", e.Kind, e.Reason)
}

// Profile lists where each field may be found for one artifact kind.
// Selectors are tried in order; the first non-empty value wins.
type Profile struct {
	Title     []string `yaml:"title"`
	Duration  []string `yaml:"duration"`
	Thumbnail []string `yaml:"thumbnail"`
	ItemCount []string `yaml:"item_count"`

	// Tags are collected from every matching element.
	Tags []string `yaml:"tags"`

	// ScanDuration and ScanItemCount allow the field to be read from the
	// container's text when none of its selectors match. Only kinds that
	// carry the field should set them.
	ScanDuration  bool `yaml:"scan_duration,omitempty"`
	ScanItemCount bool `yaml:"scan_item_count,omitempty"`
}

var (
	idAttributes = []string{"data-artifact-id", "data-item-id", "data-id"}

	hrefIDPattern    = regexp.MustCompile(`(?:/artifact/|/audio/|[?&]artifactId=)([A-Za-z0-9_-]+)`)
	durationPattern  = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)
	itemCountPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(?:cards?|questions?|items?|sources?)\b`)
)

// Extractor turns snapshots into Metadata.
type Extractor struct {
	profiles map[string]Profile
	fallback Profile
}

// New creates an extractor with per-kind profiles. Kinds without a profile
// use fallback.
func New(profiles map[string]Profile, fallback Profile) *Extractor {
	p := make(map[string]Profile, len(profiles))
	for k, v := range profiles {
		p[k] = v
	}
	return &Extractor{profiles: p, fallback: fallback}
}

// Extract parses containerHTML and reads the metadata for kind.
func (x *Extractor) Extract(kind, containerHTML string) (Metadata, error) {
	node, err := html.Parse(strings.NewReader(containerHTML))
	if err != nil {
		return Metadata{}, &ExtractionError{Kind: kind, Reason: fmt.Sprintf("unparseable snapshot: %v", err)}
	}
	doc := goquery.NewDocumentFromNode(node)

	id := artifactID(doc)
	if id == "" {
		return Metadata{}, &ExtractionError{Kind: kind, Reason: "no artifact identifier in container"}
	}

	profile, ok := x.profiles[kind]
	if !ok {
		profile = x.fallback
	}

	text := normalizeSpace(doc.Text())
	durationText, countText := "", ""
	if profile.ScanDuration {
		durationText = text
	}
	if profile.ScanItemCount {
		countText = text
	}
	md := Metadata{
		Kind:          kind,
		ArtifactID:    id,
		Title:         orUnknown(firstText(doc, profile.Title)),
		MediaDuration: orUnknown(firstMatch(firstText(doc, profile.Duration), durationText, durationPattern, 0)),
		Thumbnail:     orUnknown(firstAttr(doc, profile.Thumbnail, "src")),
		ItemCount:     orUnknown(firstMatch(firstText(doc, profile.ItemCount), countText, itemCountPattern, 1)),
		Tags:          allTexts(doc, profile.Tags),
	}
	return md, nil
}

func artifactID(doc *goquery.Document) string {
	for _, attr := range idAttributes {
		if v, ok := doc.Find("[" + attr + "]").First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	var id string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if m := hrefIDPattern.FindStringSubmatch(href); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	return id
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if t := normalizeSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, selectors []string, attr string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func allTexts(doc *goquery.Document, selectors []string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			t := normalizeSpace(s.Text())
			if t != "" && !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		})
	}
	return tags
}

// firstMatch prefers the value found by selector; when it is empty the
// pattern is applied to text, which is empty unless the profile scans.
func firstMatch(found, text string, pattern *regexp.Regexp, group int) string {
	if found != "" {
		if m := pattern.FindStringSubmatch(found); m != nil {
			return m[group]
		}
		return found
	}
	if m := pattern.FindStringSubmatch(text); m != nil {
		return m[group]
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
