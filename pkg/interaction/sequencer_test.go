package interaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/deepdiver/pkg/interaction"
	"github.com/entrhq/deepdiver/pkg/locator"
	"github.com/entrhq/deepdiver/pkg/locator/locatortest"
)

const catalogDoc = `
version: test
targets:
  open:
    - {name: edit, kind: css, css: button.edit}
  dialog:
    - {name: container, kind: css, css: .dialog}
  format:
    - {name: tile, kind: text, tag: mat-radio-button, text: "{arg}"}
  prompt:
    - {name: textarea, kind: css, css: textarea}
  generate:
    - {name: button, kind: text, tag: button, text: Generate}
  missing:
    - {name: nothing, kind: css, css: .nothing}
`

func newSequencer(t *testing.T) *interaction.Sequencer {
	t.Helper()
	c, err := locator.ParseCatalog([]byte(catalogDoc))
	require.NoError(t, err)
	r := locator.NewResolver(c, locator.WithBackoff(5*time.Millisecond))
	return interaction.NewSequencer(r,
		interaction.WithStepTimeout(100*time.Millisecond),
		interaction.WithEffectPoll(5*time.Millisecond))
}

// fixture is a page with an edit button that opens a dialog containing
// format tiles, a prompt and a generate button that closes the dialog.
type fixture struct {
	page     *locatortest.Node
	edit     *locatortest.Node
	dialog   *locatortest.Node
	debate   *locatortest.Node
	prompt   *locatortest.Node
	generate *locatortest.Node
}

func newFixture() *fixture {
	f := &fixture{
		page:     locatortest.NewPage(),
		edit:     locatortest.NewNode("edit"),
		dialog:   locatortest.NewNode("dialog"),
		debate:   locatortest.NewNode("debate").WithAttr("aria-checked", "false"),
		prompt:   locatortest.NewNode("prompt"),
		generate: locatortest.NewNode("generate"),
	}
	f.page.On("button.edit", f.edit)
	f.dialog.On(`mat-radio-button:has-text("Debate")`, f.debate)
	f.dialog.On("textarea", f.prompt)
	f.dialog.On(`button:has-text("Generate")`, f.generate)

	f.edit.OnClick(func(*locatortest.Node) { f.page.On(".dialog", f.dialog) })
	f.debate.OnClick(func(n *locatortest.Node) { n.WithAttr("aria-checked", "true") })
	f.generate.OnClick(func(*locatortest.Node) { f.page.Off(".dialog") })
	return f
}

func customize() interaction.Protocol {
	return interaction.Protocol{
		Name: "customize",
		Steps: []interaction.Step{
			{Name: "open", Action: interaction.ActionClick, Target: locator.Q("open"), Effect: interaction.Visible(locator.Q("dialog"))},
			{Name: "dialog", Action: interaction.ActionEnter, Target: locator.Q("dialog")},
			{Name: "format", Action: interaction.ActionSelect, Target: locator.Q("format", "Debate"), Effect: interaction.Selected()},
			{Name: "prompt", Action: interaction.ActionFill, Target: locator.Q("prompt"), Value: "focus on risks"},
			{Name: "generate", Action: interaction.ActionClick, Target: locator.Q("generate")},
			{Action: interaction.ActionLeave},
		},
	}
}

func TestRun_GuidedCustomization(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()

	err := s.Run(context.Background(), customize(), f.page)
	require.NoError(t, err)

	assert.Equal(t, 1, f.edit.Clicks())
	assert.Equal(t, 1, f.debate.Clicks())
	assert.Equal(t, []string{"focus on risks"}, f.prompt.Filled())
	assert.Equal(t, 1, f.generate.Clicks())

	// Steps after enter resolve inside the dialog, not the page.
	assert.NotContains(t, f.page.Queries(), "textarea")
	assert.Contains(t, f.dialog.Queries(), "textarea")
}

func TestRun_SelectIsIdempotent(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()
	f.page.On(".dialog", f.dialog)

	p := interaction.Protocol{
		Name: "select-format",
		Steps: []interaction.Step{
			{Action: interaction.ActionEnter, Target: locator.Q("dialog")},
			{Action: interaction.ActionSelect, Target: locator.Q("format", "Debate"), Effect: interaction.Selected(), CloseWith: "Escape"},
		},
	}

	require.NoError(t, s.Run(context.Background(), p, f.page))
	require.NoError(t, s.Run(context.Background(), p, f.page))

	assert.Equal(t, 1, f.debate.Clicks())
	assert.Equal(t, []string{"Escape"}, f.debate.Pressed())

	selected, err := interaction.IsSelected(f.debate)
	require.NoError(t, err)
	assert.True(t, selected)
}

func TestRun_StepFailedCarriesIndex(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()
	f.page.On(".dialog", f.dialog)
	f.dialog.Off(`button:has-text("Generate")`)

	p := customize()
	p.Steps = p.Steps[1:]

	err := s.Run(context.Background(), p, f.page)

	var failed *interaction.StepFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 3, failed.Index)
	assert.Equal(t, "generate", failed.Step.Name)

	var notFound *locator.ElementNotFound
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "generate", notFound.Target)
}

func TestRun_EffectNotObserved(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()
	f.edit.OnClick(nil)

	p := customize()
	err := s.Run(context.Background(), p, f.page)

	var failed *interaction.StepFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 0, failed.Index)

	var effectErr *interaction.EffectNotObserved
	require.True(t, errors.As(err, &effectErr))
	assert.Equal(t, interaction.EffectVisible, effectErr.Effect.Kind)
}

func TestRun_HiddenEffect(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()
	f.page.On(".dialog", f.dialog)

	p := interaction.Protocol{
		Name: "submit",
		Steps: []interaction.Step{
			{Action: interaction.ActionEnter, Target: locator.Q("dialog")},
			{Action: interaction.ActionClick, Target: locator.Q("generate")},
			{Action: interaction.ActionLeave},
			{Action: interaction.ActionWait, Target: locator.Q("open"), Effect: interaction.HiddenTarget(locator.Q("dialog"))},
		},
	}
	require.NoError(t, s.Run(context.Background(), p, f.page))
}

func TestRun_OptionalStepSkipped(t *testing.T) {
	s := newSequencer(t)
	f := newFixture()

	p := interaction.Protocol{
		Name: "optional",
		Steps: []interaction.Step{
			{Action: interaction.ActionClick, Target: locator.Q("missing"), Optional: true, Timeout: 10 * time.Millisecond},
			{Action: interaction.ActionClick, Target: locator.Q("open")},
		},
	}
	require.NoError(t, s.Run(context.Background(), p, f.page))
	assert.Equal(t, 1, f.edit.Clicks())
}

func TestRun_UploadUsesHiddenInput(t *testing.T) {
	c, err := locator.ParseCatalog([]byte("version: t\ntargets:\n  file_input:\n    - {name: input, kind: css, css: 'input[type=file]'}\n"))
	require.NoError(t, err)
	s := interaction.NewSequencer(locator.NewResolver(c))

	page := locatortest.NewPage()
	input := locatortest.NewNode("input").Hide()
	page.On("input[type=file]", input)

	p := interaction.Protocol{
		Name:  "upload",
		Steps: []interaction.Step{{Action: interaction.ActionUpload, Target: locator.Q("file_input"), Files: []string{"/tmp/a.pdf"}}},
	}
	require.NoError(t, s.Run(context.Background(), p, page))
	assert.Equal(t, []string{"/tmp/a.pdf"}, input.Files())
}

func TestProtocol_Validate(t *testing.T) {
	tests := []struct {
		name    string
		steps   []interaction.Step
		wantErr string
	}{
		{name: "empty", wantErr: "no steps"},
		{name: "click without target", steps: []interaction.Step{{Action: interaction.ActionClick}}, wantErr: "target is required"},
		{name: "press without key", steps: []interaction.Step{{Action: interaction.ActionPress, Target: locator.Q("x")}}, wantErr: "needs a key"},
		{name: "upload without files", steps: []interaction.Step{{Action: interaction.ActionUpload, Target: locator.Q("x")}}, wantErr: "needs a target and files"},
		{name: "unbalanced leave", steps: []interaction.Step{{Action: interaction.ActionLeave}}, wantErr: "leave without enter"},
		{name: "unknown action", steps: []interaction.Step{{Action: "hover", Target: locator.Q("x")}}, wantErr: "unknown action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := interaction.Protocol{Name: "p", Steps: tt.steps}.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsSelected(t *testing.T) {
	tests := []struct {
		name string
		node *locatortest.Node
		want bool
	}{
		{name: "aria-checked", node: locatortest.NewNode("n").WithAttr("aria-checked", "true"), want: true},
		{name: "aria-pressed", node: locatortest.NewNode("n").WithAttr("aria-pressed", "true"), want: true},
		{name: "aria-selected", node: locatortest.NewNode("n").WithAttr("aria-selected", "true"), want: true},
		{name: "checked class", node: locatortest.NewNode("n").WithAttr("class", "mat-mdc-radio-button mat-mdc-radio-checked"), want: true},
		{name: "unchecked", node: locatortest.NewNode("n").WithAttr("aria-checked", "false").WithAttr("class", "mat-mdc-radio-button"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interaction.IsSelected(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
