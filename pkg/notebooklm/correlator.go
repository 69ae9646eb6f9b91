package notebooklm

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/locator"
	"github.com/entrhq/deepdiver/pkg/logging"
	"github.com/entrhq/deepdiver/pkg/monitor"
)

// Attributes written onto Studio tiles. They live in the page's DOM only
// and disappear on reload.
const (
	attrSeen = "data-deepdiver-seen"
	attrTag  = "data-deepdiver-tag"
)

type trackedJob struct {
	tag        string
	kind       jobs.Kind
	notebookID string
}

// correlator pairs submitted jobs with the Studio tiles they produce.
// A tile that existed before a submission is stamped as seen; the first
// unseen tile of a compatible kind is claimed by the oldest job waiting
// for one. All methods must be called with mu held.
type correlator struct {
	mu      sync.Mutex
	catalog *locator.Catalog
	studio  StudioLayout
	logger  *logging.Logger

	pending []trackedJob
	claimed map[string]trackedJob
}

func newCorrelator(l *Layout, logger *logging.Logger) *correlator {
	return &correlator{
		catalog: l.Catalog,
		studio:  l.Studio,
		logger:  logger,
		claimed: make(map[string]trackedJob),
	}
}

// job returns the tracked job for tag and whether it has a tile.
func (c *correlator) job(tag string) (trackedJob, bool, bool) {
	if j, ok := c.claimed[tag]; ok {
		return j, true, true
	}
	for _, j := range c.pending {
		if j.tag == tag {
			return j, false, true
		}
	}
	return trackedJob{}, false, false
}

// busyWith returns a notebook other than notebookID that still has jobs in
// flight.
func (c *correlator) busyWith(notebookID string) (string, bool) {
	for _, j := range c.pending {
		if j.notebookID != notebookID {
			return j.notebookID, true
		}
	}
	for _, j := range c.claimed {
		if j.notebookID != notebookID {
			return j.notebookID, true
		}
	}
	return "", false
}

func (c *correlator) expect(j trackedJob) {
	c.pending = append(c.pending, j)
}

func (c *correlator) forget(tag string) {
	delete(c.claimed, tag)
	c.pending = slices.DeleteFunc(c.pending, func(j trackedJob) bool { return j.tag == tag })
}

// markSeen stamps every unclaimed tile so later submissions ignore it.
func (c *correlator) markSeen(scope locator.Scope) error {
	tiles, err := findAll(c.catalog, locator.Q(targetStudioArtifact), scope)
	if err != nil {
		return err
	}
	for _, t := range tiles {
		tag, err := t.Attribute(attrTag)
		if err != nil {
			return err
		}
		if tag != "" {
			continue
		}
		if err := t.SetAttribute(attrSeen, "1"); err != nil {
			return fmt.Errorf("failed to mark artifact tile: %w", err)
		}
	}
	return nil
}

// claim hands unseen tiles to pending jobs of notebookID, oldest job first.
func (c *correlator) claim(scope locator.Scope, notebookID string) error {
	if len(c.pending) == 0 {
		return nil
	}
	tiles, err := findAll(c.catalog, locator.Q(targetStudioArtifact), scope)
	if err != nil {
		return err
	}
	if c.studio.NewestFirst {
		slices.Reverse(tiles)
	}

	var fresh []locator.Element
	for _, t := range tiles {
		seen, err := t.Attribute(attrSeen)
		if err != nil {
			return err
		}
		tag, err := t.Attribute(attrTag)
		if err != nil {
			return err
		}
		if seen == "" && tag == "" {
			fresh = append(fresh, t)
		}
	}

	var remaining []trackedJob
	for _, j := range c.pending {
		if j.notebookID != notebookID {
			remaining = append(remaining, j)
			continue
		}
		idx := -1
		for i, t := range fresh {
			if c.accepts(t, j.kind) {
				idx = i
				break
			}
		}
		if idx < 0 {
			remaining = append(remaining, j)
			continue
		}
		if err := fresh[idx].SetAttribute(attrTag, j.tag); err != nil {
			return fmt.Errorf("failed to tag artifact tile: %w", err)
		}
		fresh = slices.Delete(fresh, idx, idx+1)
		c.claimed[j.tag] = j
		c.logger.Debugf("job %s: claimed artifact tile", j.tag)
	}
	c.pending = remaining
	return nil
}

// accepts reports whether tile may belong to a job of kind. Tiles whose
// kind cannot be told are accepted.
func (c *correlator) accepts(tile locator.Element, kind jobs.Kind) bool {
	if len(c.studio.Kinds) == 0 {
		return true
	}
	html, err := tile.HTML()
	if err != nil {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	detected := false
	for k, sels := range c.studio.Kinds {
		if matchesAny(doc, sels) {
			if k == string(kind) {
				return true
			}
			detected = true
		}
	}
	return !detected
}

// tile returns the tile claimed by tag, if it is still in the page.
func (c *correlator) tile(scope locator.Scope, tag string) (locator.Element, bool, error) {
	tiles, err := findAll(c.catalog, locator.Q(targetStudioArtifact), scope)
	if err != nil {
		return nil, false, err
	}
	for _, t := range tiles {
		v, err := t.Attribute(attrTag)
		if err != nil {
			return nil, false, err
		}
		if v == tag {
			return t, true, nil
		}
	}
	return nil, false, nil
}

// classify reads a tile snapshot. Errors take precedence over progress
// indicators, which take precedence over readiness.
func (c *correlator) classify(tileHTML string) (monitor.Signal, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tileHTML))
	if err != nil {
		return monitor.Signal{}, fmt.Errorf("failed to parse artifact tile: %w", err)
	}
	text := normalizeSpace(doc.Text())

	for _, sel := range c.studio.Error {
		if s := doc.Find(sel); s.Length() > 0 {
			msg := normalizeSpace(s.First().Text())
			if msg == "" {
				msg = text
			}
			return monitor.Signal{Kind: monitor.SignalError, Message: msg}, nil
		}
	}
	lower := strings.ToLower(text)
	for _, phrase := range c.studio.ErrorPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return monitor.Signal{Kind: monitor.SignalError, Message: text}, nil
		}
	}
	if matchesAny(doc, c.studio.Generating) {
		return monitor.Signal{Kind: monitor.SignalNone, Message: "generating"}, nil
	}
	if matchesAny(doc, c.studio.Ready) {
		return monitor.Signal{Kind: monitor.SignalReady}, nil
	}
	return monitor.Signal{Kind: monitor.SignalNone}, nil
}

func matchesAny(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// findAll makes a single pass over q's rules and returns the elements of
// the first rule that matches anything, visible or not.
func findAll(catalog *locator.Catalog, q locator.Query, scope locator.Scope) ([]locator.Element, error) {
	strategy, err := catalog.Strategy(q.Target)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, rule := range strategy.Rules {
		els, err := scope.Find(rule.Compile(q.Arg))
		if err != nil {
			lastErr = err
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, lastErr
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
