package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/deepdiver/pkg/extract"
	"github.com/entrhq/deepdiver/pkg/monitor"
)

var (
	// ErrGenerationFailed classifies Failed outcomes reported by the UI.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrQuotaExceeded classifies Failed outcomes caused by a usage limit.
	// It wraps ErrGenerationFailed.
	ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrGenerationFailed)

	// ErrTimedOut classifies TimedOut outcomes.
	ErrTimedOut = errors.New("generation timed out")

	// ErrCancelled classifies Cancelled outcomes. It wraps context.Canceled.
	ErrCancelled = fmt.Errorf("generation cancelled: %w", context.Canceled)
)

// quotaPhrases mark error messages caused by daily or plan limits. A bare
// "limit" is not enough: content errors mention word and source limits.
var quotaPhrases = []string{
	"reached your daily",
	"daily limit",
	"usage limit",
	"limit reached",
	"reached your limit",
	"quota",
	"try again tomorrow",
	"come back later",
	"reached the maximum",
}

// Outcome is the terminal result of one job. It is produced once per
// submission and never changed afterwards.
type Outcome struct {
	Tag      string
	Kind     Kind
	State    monitor.State
	Metadata *extract.Metadata
	Reason   string
	Err      error
	Elapsed  time.Duration
	Polls    int
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool {
	return o.State == monitor.Completed
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return fmt.Sprintf("%s %s: %s", o.Kind, o.Tag, o.State)
	}
	return fmt.Sprintf("%s %s: %s (%s)", o.Kind, o.Tag, o.State, o.Reason)
}

// classify builds the error carried by a non-Completed outcome.
func classify(state monitor.State, reason string) error {
	switch state {
	case monitor.Failed:
		lower := strings.ToLower(reason)
		for _, p := range quotaPhrases {
			if strings.Contains(lower, p) {
				return fmt.Errorf("%w: %s", ErrQuotaExceeded, reason)
			}
		}
		if reason == "" {
			return ErrGenerationFailed
		}
		return fmt.Errorf("%w: %s", ErrGenerationFailed, reason)
	case monitor.TimedOut:
		return fmt.Errorf("%w: %s", ErrTimedOut, reason)
	case monitor.Cancelled:
		return ErrCancelled
	default:
		return nil
	}
}
