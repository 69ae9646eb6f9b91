package locator

import "time"

// Scope is a region of the document in which selectors are evaluated.
type Scope interface {
	// Find returns the elements currently matching selector, in document order.
	Find(selector string) ([]Element, error)
}

// Element is a handle to one DOM element. Implementations re-evaluate the
// element lazily, so a handle may report not visible once the element is
// removed from the page.
type Element interface {
	Scope

	IsVisible() (bool, error)
	IsEnabled() (bool, error)

	// IsObscured reports whether another element covers the element's
	// center point.
	IsObscured() (bool, error)

	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(name string) (string, error)
	SetAttribute(name, value string) error
	Text() (string, error)

	// HTML returns the element's outer HTML.
	HTML() (string, error)

	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	Press(key string, timeout time.Duration) error
	SetFiles(paths []string, timeout time.Duration) error
}
