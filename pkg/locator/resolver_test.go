package locator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/locator"
	"github.com/entrhq/deepdiver/pkg/locator/locatortest"
)

const catalogDoc = `
version: test
targets:
  submit:
    - name: R1
      kind: css
      css: "#submit"
    - name: R2
      kind: css
      css: button.submit
    - name: R3
      kind: text
      tag: button
      text: Submit
  option:
    - name: exact
      kind: text
      tag: mat-option
      text: "{arg}"
      exact: true
`

func newResolver(t *testing.T) *locator.Resolver {
	t.Helper()
	c, err := locator.ParseCatalog([]byte(catalogDoc))
	require.NoError(t, err)
	return locator.NewResolver(c, locator.WithBackoff(10*time.Millisecond))
}

func TestResolve_FallsThroughToEnabledRule(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	disabled := locatortest.NewNode("disabled").Disable()
	enabled := locatortest.NewNode("enabled")
	page.On("button.submit", disabled)
	page.On(`button:has-text("Submit")`, enabled)

	el, err := r.Resolve(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	assert.Same(t, enabled, el)

	// Rules are tried in declared order within the pass.
	assert.Equal(t, []string{"#submit", "button.submit", `button:has-text("Submit")`}, page.Queries())
}

func TestResolve_FirstMatchingRuleWins(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	first := locatortest.NewNode("first")
	page.On("#submit", first)
	page.On(`button:has-text("Submit")`, locatortest.NewNode("later"))

	el, err := r.Resolve(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	assert.Same(t, first, el)
	assert.Equal(t, []string{"#submit"}, page.Queries())
}

func TestResolve_NeverReturnsUnusableElement(t *testing.T) {
	tests := []struct {
		name   string
		node   *locatortest.Node
		reason string
	}{
		{name: "hidden", node: locatortest.NewNode("n").Hide(), reason: "hidden"},
		{name: "disabled", node: locatortest.NewNode("n").Disable(), reason: "disabled"},
		{name: "aria disabled", node: locatortest.NewNode("n").WithAttr("aria-disabled", "true"), reason: "disabled"},
		{name: "obscured", node: locatortest.NewNode("n").Obscure(), reason: "obscured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t)
			page := locatortest.NewPage()
			page.On("#submit", tt.node)

			el, err := r.Resolve(context.Background(), locator.Q("submit"), page, 30*time.Millisecond)
			assert.Nil(t, el)

			var notFound *locator.ElementNotFound
			require.True(t, errors.As(err, &notFound))
			assert.Contains(t, notFound.Tried[0].Result, tt.reason)
		})
	}
}

func TestResolve_TimeoutReportsTriedRules(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	start := time.Now()
	_, err := r.Resolve(context.Background(), locator.Q("submit"), page, 50*time.Millisecond)
	elapsed := time.Since(start)

	var notFound *locator.ElementNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "submit", notFound.Target)
	assert.Equal(t, []string{"R1", "R2", "R3"}, notFound.TriedRules())
	assert.GreaterOrEqual(t, notFound.Passes, 2)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Contains(t, err.Error(), "R1: no match")
}

func TestResolve_ZeroTimeoutMakesOnePass(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	_, err := r.Resolve(context.Background(), locator.Q("submit"), page, 0)

	var notFound *locator.ElementNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, 1, notFound.Passes)
	assert.Len(t, page.Queries(), 3)
}

func TestResolve_AppearsDuringWait(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()
	node := locatortest.NewNode("late")

	go func() {
		time.Sleep(30 * time.Millisecond)
		page.On("#submit", node)
	}()

	el, err := r.Resolve(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	assert.Same(t, node, el)
}

func TestResolve_ContextCancelled(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, locator.Q("submit"), page, time.Minute)
	assert.True(t, errors.Is(err, context.Canceled))

	var notFound *locator.ElementNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestResolve_FindErrorIsRecorded(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()
	page.FailOn("#submit", errors.New("target closed"))
	page.On("button.submit", locatortest.NewNode("ok"))

	el, err := r.Resolve(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, el)
}

func TestResolve_UnknownTarget(t *testing.T) {
	r := newResolver(t)
	_, err := r.Resolve(context.Background(), locator.Q("nope"), locatortest.NewPage(), time.Second)
	assert.True(t, errors.Is(err, locator.ErrUnknownTarget))
}

func TestResolve_SubstitutesArg(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()
	english := locatortest.NewNode("english")
	page.On(`mat-option:text-is("English")`, english)

	el, err := r.Resolve(context.Background(), locator.Q("option", "English"), page, time.Second)
	require.NoError(t, err)
	assert.Same(t, english, el)
}

func TestResolveAttached_AcceptsHidden(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()
	hidden := locatortest.NewNode("file-input").Hide()
	page.On("#submit", hidden)

	el, err := r.ResolveAttached(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	assert.Same(t, hidden, el)
}

func TestResolveAll_ReturnsVisibleMatchesOfFirstRule(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()
	a := locatortest.NewNode("a")
	b := locatortest.NewNode("b").Hide()
	c := locatortest.NewNode("c")
	page.On("button.submit", a, b, c)

	els, err := r.ResolveAll(context.Background(), locator.Q("submit"), page, time.Second)
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Same(t, a, els[0])
	assert.Same(t, c, els[1])
}

func TestPresent(t *testing.T) {
	r := newResolver(t)
	page := locatortest.NewPage()

	ok, err := r.Present(locator.Q("submit"), page)
	require.NoError(t, err)
	assert.False(t, ok)

	page.On(`button:has-text("Submit")`, locatortest.NewNode("x"))
	ok, err = r.Present(locator.Q("submit"), page)
	require.NoError(t, err)
	assert.True(t, ok)
}
