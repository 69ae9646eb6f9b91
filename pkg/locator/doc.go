// Package locator finds UI elements in a DOM that changes without notice.
//
// A semantic target such as "the customize button of the Audio Overview
// card" is described by a Strategy: an ordered list of Rules, from the most
// specific and stable to the most generic fallback. The Resolver tries the
// rules strictly in declared order and returns the first element that is
// present and interactable (visible, enabled, not covered by another
// element). Strategies are versioned configuration data held in a Catalog,
// normally loaded from YAML, so selectors can be updated without touching
// the workflows that use them.
//
// # Rule kinds
//
//   - css: a structural or attribute selector, e.g. button[aria-label="Share"]
//   - text: an element tag plus its visible text, e.g. button containing "Share"
//   - role: an ARIA role plus accessible name, e.g. role=button name=Share
//
// Any rule string may contain the placeholder {arg}, which is replaced by the
// Query argument. This lets one strategy serve a family of targets, for
// example the action button of whichever artifact kind is requested.
//
// # Scopes
//
// Resolution happens inside a Scope: the whole page or a narrowed
// container such as an open dialog. Elements are scopes themselves, so
// nested lookups compose naturally.
package locator
