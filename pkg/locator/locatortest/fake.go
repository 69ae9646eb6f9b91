// Package locatortest provides an in-memory DOM for testing code that
// resolves and drives elements through locator.Scope.
package locatortest

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/deepdiver/pkg/locator"
)

// Node is a fake element. Matches are registered per selector string with
// On; Find returns exactly what was registered, in registration order.
type Node struct {
	Name string

	mu       sync.Mutex
	attrs    map[string]string
	text     string
	html     string
	hidden   bool
	disabled bool
	obscured bool
	children map[string][]*Node
	findErr  map[string]error
	queries  []string

	clicks  int
	filled  []string
	pressed []string
	files   []string
	onClick func(*Node)
}

var _ locator.Element = (*Node)(nil)

// NewNode creates a visible, enabled node.
func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		attrs:    make(map[string]string),
		children: make(map[string][]*Node),
		findErr:  make(map[string]error),
	}
}

// NewPage creates a root node.
func NewPage() *Node {
	return NewNode("page")
}

// On registers nodes as the matches for selector within n.
func (n *Node) On(selector string, nodes ...*Node) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[selector] = append([]*Node(nil), nodes...)
	return n
}

// Off removes the matches for selector.
func (n *Node) Off(selector string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, selector)
	return n
}

// FailOn makes Find(selector) return err.
func (n *Node) FailOn(selector string, err error) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.findErr[selector] = err
	return n
}

// WithAttr sets an attribute.
func (n *Node) WithAttr(name, value string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attrs[name] = value
	return n
}

// WithText sets the visible text.
func (n *Node) WithText(text string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.text = text
	return n
}

// WithHTML sets the outer HTML.
func (n *Node) WithHTML(html string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.html = html
	return n
}

// Hide marks the node hidden.
func (n *Node) Hide() *Node { n.setFlag(&n.hidden, true); return n }

// Show marks the node visible.
func (n *Node) Show() *Node { n.setFlag(&n.hidden, false); return n }

// Disable marks the node disabled.
func (n *Node) Disable() *Node { n.setFlag(&n.disabled, true); return n }

// Enable marks the node enabled.
func (n *Node) Enable() *Node { n.setFlag(&n.disabled, false); return n }

// Obscure marks the node as covered by another element.
func (n *Node) Obscure() *Node { n.setFlag(&n.obscured, true); return n }

// OnClick installs a click handler, used to simulate UI reactions.
func (n *Node) OnClick(fn func(*Node)) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onClick = fn
	return n
}

func (n *Node) setFlag(flag *bool, v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	*flag = v
}

// Queries returns the selectors passed to Find, in call order.
func (n *Node) Queries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.queries...)
}

// Clicks returns how many times the node was clicked.
func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

// Filled returns the values filled into the node.
func (n *Node) Filled() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.filled...)
}

// Pressed returns the keys pressed on the node.
func (n *Node) Pressed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.pressed...)
}

// Files returns the files set on the node.
func (n *Node) Files() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.files...)
}

// Find implements locator.Scope.
func (n *Node) Find(selector string) ([]locator.Element, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queries = append(n.queries, selector)
	if err := n.findErr[selector]; err != nil {
		return nil, err
	}
	matches := n.children[selector]
	out := make([]locator.Element, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out, nil
}

func (n *Node) IsVisible() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.hidden, nil
}

func (n *Node) IsEnabled() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.disabled, nil
}

func (n *Node) IsObscured() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.obscured, nil
}

func (n *Node) Attribute(name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attrs[name], nil
}

func (n *Node) SetAttribute(name, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attrs[name] = value
	return nil
}

func (n *Node) Text() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text, nil
}

func (n *Node) HTML() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.html == "" {
		return "", fmt.Errorf("node %s has no html", n.Name)
	}
	return n.html, nil
}

func (n *Node) Click(time.Duration) error {
	n.mu.Lock()
	if n.hidden {
		n.mu.Unlock()
		return fmt.Errorf("node %s is not visible", n.Name)
	}
	n.clicks++
	fn := n.onClick
	n.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return nil
}

func (n *Node) Fill(value string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.filled = append(n.filled, value)
	return nil
}

func (n *Node) Press(key string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pressed = append(n.pressed, key)
	return nil
}

func (n *Node) SetFiles(paths []string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files = append(n.files, paths...)
	return nil
}
