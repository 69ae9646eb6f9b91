package notebooklm

import (
	"fmt"
	"time"

	"github.com/entrhq/deepdiver/pkg/interaction"
	"github.com/entrhq/deepdiver/pkg/jobs"
	"github.com/entrhq/deepdiver/pkg/locator"
)

// studioLabels are the Studio panel button captions per kind.
var studioLabels = map[jobs.Kind]string{
	jobs.KindAudio:      "Audio Overview",
	jobs.KindVideo:      "Video Overview",
	jobs.KindMindMap:    "Mind Map",
	jobs.KindReport:     "Reports",
	jobs.KindFlashcards: "Flashcards",
	jobs.KindQuiz:       "Quiz",
}

var (
	audioFormatLabels = map[string]string{
		jobs.AudioDeepDive: "Deep Dive",
		jobs.AudioBrief:    "Brief",
		jobs.AudioCritique: "Critique",
		jobs.AudioDebate:   "Debate",
	}
	audioLengthLabels = map[string]string{
		jobs.LengthShort:   "Shorter",
		jobs.LengthDefault: "Default",
		jobs.LengthLong:    "Longer",
	}
	videoFormatLabels = map[string]string{
		jobs.VideoExplainer: "Explainer",
		jobs.VideoBrief:     "Brief",
	}
	reportFormatLabels = map[string]string{
		jobs.ReportBriefingDoc: "Briefing doc",
		jobs.ReportStudyGuide:  "Study guide",
		jobs.ReportBlogPost:    "Blog post",
		jobs.ReportCustom:      "Create your own",
	}
	countLabels = map[string]string{
		jobs.CountFewer:    "Fewer",
		jobs.CountStandard: "Standard",
		jobs.CountMore:     "More",
	}
	difficultyLabels = map[string]string{
		jobs.DifficultyEasy:   "Easy",
		jobs.DifficultyMedium: "Medium",
		jobs.DifficultyHard:   "Hard",
	}
)

// generateTimeout covers the dialog closing after Generate is clicked.
const generateTimeout = 30 * time.Second

// StudioLabel returns the Studio button caption for kind.
func StudioLabel(kind jobs.Kind) (string, error) {
	label, ok := studioLabels[kind]
	if !ok {
		return "", fmt.Errorf("no studio button for %q jobs", kind)
	}
	return label, nil
}

// BuildProtocol returns the steps that start generation for params. Kinds
// without options, or parameters that leave every option at its default,
// use a single click on the Studio button. Everything else goes through the
// kind's customization dialog.
func BuildProtocol(params jobs.Params) (interaction.Protocol, error) {
	if params == nil {
		return interaction.Protocol{}, fmt.Errorf("job parameters are required")
	}
	if err := params.Validate(); err != nil {
		return interaction.Protocol{}, err
	}
	kind := params.Kind()
	label, err := StudioLabel(kind)
	if err != nil {
		return interaction.Protocol{}, err
	}

	if len(params.Settings()) == 0 {
		return TriggerProtocol(kind, label), nil
	}

	b := newDialogBuilder(kind, label)
	switch p := params.(type) {
	case jobs.AudioParams:
		b.format(audioFormatLabels, p.Format)
		b.language(p.Language)
		b.toggle("length", targetLengthOption, audioLengthLabels, p.Length)
		b.prompt(p.Instructions)
	case jobs.VideoParams:
		b.format(videoFormatLabels, p.Format)
		b.language(p.Language)
		b.prompt(p.Instructions)
	case jobs.ReportParams:
		b.format(reportFormatLabels, p.Format)
		b.language(p.Language)
		b.prompt(p.Instructions)
	case jobs.FlashcardsParams:
		b.toggle("count", targetCountOption, countLabels, p.Count)
		b.toggle("difficulty", targetDifficultyOption, difficultyLabels, p.Difficulty)
		b.prompt(p.Instructions)
	case jobs.QuizParams:
		b.toggle("count", targetCountOption, countLabels, p.Count)
		b.toggle("difficulty", targetDifficultyOption, difficultyLabels, p.Difficulty)
		b.prompt(p.Instructions)
	default:
		return TriggerProtocol(kind, label), nil
	}
	return b.build(), nil
}

// TriggerProtocol starts generation with the application defaults.
func TriggerProtocol(kind jobs.Kind, label string) interaction.Protocol {
	return interaction.Protocol{
		Name: string(kind) + ".trigger",
		Steps: []interaction.Step{
			{Name: "start", Action: interaction.ActionClick, Target: locator.Q(targetStudioCreate, label)},
		},
	}
}

type dialogBuilder struct {
	kind  jobs.Kind
	steps []interaction.Step
}

func newDialogBuilder(kind jobs.Kind, label string) *dialogBuilder {
	return &dialogBuilder{
		kind: kind,
		steps: []interaction.Step{
			{
				Name:   "customize",
				Action: interaction.ActionClick,
				Target: locator.Q(targetStudioCustomize, label),
				Effect: interaction.Visible(locator.Q(targetDialog)),
			},
			{Name: "dialog", Action: interaction.ActionEnter, Target: locator.Q(targetDialog)},
		},
	}
}

func (b *dialogBuilder) add(s interaction.Step) {
	b.steps = append(b.steps, s)
}

func (b *dialogBuilder) format(labels map[string]string, value string) {
	if value == "" {
		return
	}
	b.add(interaction.Step{
		Name:   "format",
		Action: interaction.ActionSelect,
		Target: locator.Q(targetFormatOption, labels[value]),
		Effect: interaction.Selected(),
	})
}

func (b *dialogBuilder) toggle(name, target string, labels map[string]string, value string) {
	if value == "" {
		return
	}
	b.add(interaction.Step{
		Name:   name,
		Action: interaction.ActionSelect,
		Target: locator.Q(target, labels[value]),
		Effect: interaction.Selected(),
	})
}

// language opens the language select. Its options render in an overlay
// outside the dialog, so the option is chosen from the page scope.
func (b *dialogBuilder) language(value string) {
	if value == "" {
		return
	}
	b.add(interaction.Step{Name: "language", Action: interaction.ActionClick, Target: locator.Q(targetLanguageSelect)})
	b.add(interaction.Step{Action: interaction.ActionLeave})
	b.add(interaction.Step{
		Name:      "language option",
		Action:    interaction.ActionSelect,
		Target:    locator.Q(targetLanguageOption, value),
		CloseWith: "Escape",
	})
	b.add(interaction.Step{Name: "dialog", Action: interaction.ActionEnter, Target: locator.Q(targetDialog)})
}

func (b *dialogBuilder) prompt(instructions string) {
	if instructions == "" {
		return
	}
	b.add(interaction.Step{
		Name:   "instructions",
		Action: interaction.ActionFill,
		Target: locator.Q(targetPrompt),
		Value:  instructions,
	})
}

func (b *dialogBuilder) build() interaction.Protocol {
	b.add(interaction.Step{
		Name:    "generate",
		Action:  interaction.ActionClick,
		Target:  locator.Q(targetGenerate),
		Timeout: generateTimeout,
		Effect:  interaction.Hidden(),
	})
	b.add(interaction.Step{Action: interaction.ActionLeave})
	return interaction.Protocol{Name: string(b.kind) + ".customize", Steps: b.steps}
}
