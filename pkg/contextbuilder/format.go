package contextbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/coachverse/recall/pkg/memory"
)

// Style selects the line format of FormatMemoriesForPrompt.
type Style string

const (
	StyleSummary  Style = "summary"
	StyleDetailed Style = "detailed"
)

// stillFeelingThreshold is the intensity above which a memory still carries its feeling.
const stillFeelingThreshold = 70

// FormatMemoriesForPrompt renders one line per memory. Unknown styles render as summary.
func FormatMemoriesForPrompt(memories []memory.CharacterMemory, style Style, now time.Time) string {
	if len(memories) == 0 {
		return ""
	}

	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		ago := GetTimeAgo(occurredAt(m), now)
		note := emotionalNote(m)
		switch style {
		case StyleDetailed:
			lines = append(lines, fmt.Sprintf("- %s: %s%s", ago, m.DetailedContent, note))
		default:
			lines = append(lines, fmt.Sprintf("- %s (%s%s)", m.Summary, ago, note))
		}
	}
	return strings.Join(lines, "\n")
}

func emotionalNote(m memory.CharacterMemory) string {
	if m.EmotionalContext.Intensity > stillFeelingThreshold {
		return fmt.Sprintf(" (still %s)", m.EmotionalContext.Feeling)
	}
	return ""
}

func occurredAt(m memory.CharacterMemory) time.Time {
	if m.CreatedAt.IsZero() {
		return m.LastRecalled
	}
	return m.CreatedAt
}

// GetTimeAgo buckets the time between t and now.
func GetTimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Hour:
		return "just now"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%d weeks ago", int(d.Hours()/(24*7)))
	}
}
