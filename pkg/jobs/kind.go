package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of artifact a job generates.
type Kind string

const (
	KindAudio      Kind = "audio"
	KindVideo      Kind = "video"
	KindMindMap    Kind = "mindmap"
	KindReport     Kind = "report"
	KindFlashcards Kind = "flashcards"
	KindQuiz       Kind = "quiz"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindAudio, KindVideo, KindMindMap, KindReport, KindFlashcards, KindQuiz}

// ParseKind converts user input to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q (must be one of %s)", s, joinKinds())
}

func joinKinds() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// DefaultBudgets are the generation time budgets per kind.
var DefaultBudgets = map[Kind]time.Duration{
	KindAudio:      20 * time.Minute,
	KindVideo:      30 * time.Minute,
	KindReport:     10 * time.Minute,
	KindMindMap:    5 * time.Minute,
	KindFlashcards: 5 * time.Minute,
	KindQuiz:       5 * time.Minute,
}
