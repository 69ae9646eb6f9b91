package jobs

import (
	"fmt"
	"slices"
	"unicode/utf8"
)

// MaxInstructionsLength bounds free-text steering instructions, in
// characters.
const MaxInstructionsLength = 5000

// Params is the closed set of per-kind job parameters. Empty fields leave
// the application's default in place.
type Params interface {
	Kind() Kind
	Validate() error

	// Settings returns the non-empty parameters as key/value pairs.
	Settings() map[string]string

	params()
}

// AudioFormat values.
const (
	AudioDeepDive = "deep_dive"
	AudioBrief    = "brief"
	AudioCritique = "critique"
	AudioDebate   = "debate"
)

// AudioLength values.
const (
	LengthShort   = "short"
	LengthDefault = "default"
	LengthLong    = "long"
)

// VideoFormat values.
const (
	VideoExplainer = "explainer"
	VideoBrief     = "brief"
)

// ReportFormat values. ReportCustom requires Instructions.
const (
	ReportBriefingDoc = "briefing_doc"
	ReportStudyGuide  = "study_guide"
	ReportBlogPost    = "blog_post"
	ReportCustom      = "custom"
)

// Count values for flashcards and quizzes.
const (
	CountFewer    = "fewer"
	CountStandard = "standard"
	CountMore     = "more"
)

// Difficulty values for flashcards and quizzes.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type AudioParams struct {
	Format       string
	Language     string
	Length       string
	Instructions string
}

type VideoParams struct {
	Format       string
	Language     string
	Instructions string
}

// MindMapParams has no options; the mind map is a single-action trigger.
type MindMapParams struct{}

type ReportParams struct {
	Format       string
	Language     string
	Instructions string
}

type FlashcardsParams struct {
	Count        string
	Difficulty   string
	Instructions string
}

type QuizParams struct {
	Count        string
	Difficulty   string
	Instructions string
}

func (AudioParams) Kind() Kind      { return KindAudio }
func (VideoParams) Kind() Kind      { return KindVideo }
func (MindMapParams) Kind() Kind    { return KindMindMap }
func (ReportParams) Kind() Kind     { return KindReport }
func (FlashcardsParams) Kind() Kind { return KindFlashcards }
func (QuizParams) Kind() Kind       { return KindQuiz }

func (AudioParams) params()      {}
func (VideoParams) params()      {}
func (MindMapParams) params()    {}
func (ReportParams) params()     {}
func (FlashcardsParams) params() {}
func (QuizParams) params()       {}

func (p AudioParams) Validate() error {
	if err := oneOf("format", p.Format, AudioDeepDive, AudioBrief, AudioCritique, AudioDebate); err != nil {
		return err
	}
	if err := oneOf("length", p.Length, LengthShort, LengthDefault, LengthLong); err != nil {
		return err
	}
	return checkInstructions(p.Instructions)
}

func (p VideoParams) Validate() error {
	if err := oneOf("format", p.Format, VideoExplainer, VideoBrief); err != nil {
		return err
	}
	return checkInstructions(p.Instructions)
}

func (MindMapParams) Validate() error { return nil }

func (p ReportParams) Validate() error {
	if err := oneOf("format", p.Format, ReportBriefingDoc, ReportStudyGuide, ReportBlogPost, ReportCustom); err != nil {
		return err
	}
	if p.Format == ReportCustom && p.Instructions == "" {
		return fmt.Errorf("custom reports require instructions")
	}
	return checkInstructions(p.Instructions)
}

func (p FlashcardsParams) Validate() error {
	return validateDeck(p.Count, p.Difficulty, p.Instructions)
}

func (p QuizParams) Validate() error {
	return validateDeck(p.Count, p.Difficulty, p.Instructions)
}

func (p AudioParams) Settings() map[string]string {
	return settings("format", p.Format, "language", p.Language, "length", p.Length, "instructions", p.Instructions)
}

func (p VideoParams) Settings() map[string]string {
	return settings("format", p.Format, "language", p.Language, "instructions", p.Instructions)
}

func (MindMapParams) Settings() map[string]string { return map[string]string{} }

func (p ReportParams) Settings() map[string]string {
	return settings("format", p.Format, "language", p.Language, "instructions", p.Instructions)
}

func (p FlashcardsParams) Settings() map[string]string {
	return settings("count", p.Count, "difficulty", p.Difficulty, "instructions", p.Instructions)
}

func (p QuizParams) Settings() map[string]string {
	return settings("count", p.Count, "difficulty", p.Difficulty, "instructions", p.Instructions)
}

// DefaultParams returns the zero parameters for kind.
func DefaultParams(kind Kind) (Params, error) {
	switch kind {
	case KindAudio:
		return AudioParams{}, nil
	case KindVideo:
		return VideoParams{}, nil
	case KindMindMap:
		return MindMapParams{}, nil
	case KindReport:
		return ReportParams{}, nil
	case KindFlashcards:
		return FlashcardsParams{}, nil
	case KindQuiz:
		return QuizParams{}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

func validateDeck(count, difficulty, instructions string) error {
	if err := oneOf("count", count, CountFewer, CountStandard, CountMore); err != nil {
		return err
	}
	if err := oneOf("difficulty", difficulty, DifficultyEasy, DifficultyMedium, DifficultyHard); err != nil {
		return err
	}
	return checkInstructions(instructions)
}

func oneOf(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (must be one of %v)", field, value, allowed)
}

func checkInstructions(s string) error {
	if n := utf8.RuneCountInString(s); n > MaxInstructionsLength {
		return fmt.Errorf("instructions are %d characters, limit is %d", n, MaxInstructionsLength)
	}
	return nil
}

func settings(pairs ...string) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			out[pairs[i]] = pairs[i+1]
		}
	}
	return out
}

// ParamsFromSettings builds the parameters for kind from key/value pairs,
// the inverse of Params.Settings. Unknown keys are rejected.
func ParamsFromSettings(kind Kind, kv map[string]string) (Params, error) {
	var (
		p       Params
		allowed []string
	)
	switch kind {
	case KindAudio:
		p = AudioParams{Format: kv["format"], Language: kv["language"], Length: kv["length"], Instructions: kv["instructions"]}
		allowed = []string{"format", "language", "length", "instructions"}
	case KindVideo:
		p = VideoParams{Format: kv["format"], Language: kv["language"], Instructions: kv["instructions"]}
		allowed = []string{"format", "language", "instructions"}
	case KindMindMap:
		p = MindMapParams{}
	case KindReport:
		p = ReportParams{Format: kv["format"], Language: kv["language"], Instructions: kv["instructions"]}
		allowed = []string{"format", "language", "instructions"}
	case KindFlashcards:
		p = FlashcardsParams{Count: kv["count"], Difficulty: kv["difficulty"], Instructions: kv["instructions"]}
		allowed = []string{"count", "difficulty", "instructions"}
	case KindQuiz:
		p = QuizParams{Count: kv["count"], Difficulty: kv["difficulty"], Instructions: kv["instructions"]}
		allowed = []string{"count", "difficulty", "instructions"}
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	for key := range kv {
		if !slices.Contains(allowed, key) {
			return nil, fmt.Errorf("%s jobs have no %q setting", kind, key)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MergeSettings overlays the non-empty values of override onto base.
func MergeSettings(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
