package channel

import (
	"fmt"
	"strings"
	"time"
)

// namePrefix marks managed channels; the clock emoji plus the platform's
// wide bullet, matching what users already recognize.
const namePrefix = "⏰・"

// SanitizeTopic turns a free-text topic into a display-name-safe slug:
// lowercased, whitespace runs collapsed to single dashes.
func SanitizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), "-"))
}

// FormatCountdown renders remaining time at the coarsest sensible unit:
// days at a full day or more, bare hours from two hours up, hours+minutes
// between one and two hours, minutes below that.
func FormatCountdown(remaining time.Duration) string {
	totalMinutes := int(remaining.Minutes())
	if totalMinutes < 1 {
		totalMinutes = 1
	}
	hours := totalMinutes / 60
	minutes := totalMinutes % 60
	switch {
	case totalMinutes >= 120:
		if hours >= 24 {
			return fmt.Sprintf("%dd", hours/24)
		}
		return fmt.Sprintf("%dh", hours)
	case totalMinutes >= 60:
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", totalMinutes)
	}
}

// DisplayName builds the live channel name with the countdown suffix.
// Caller holds the descriptor lock.
func (d *Descriptor) DisplayName(now time.Time) string {
	return namePrefix + SanitizeTopic(d.Topic) + "-" + FormatCountdown(d.Remaining(now))
}

// FormatRemaining renders remaining time for list output, e.g. "2h 5m" or "45m".
func FormatRemaining(remaining time.Duration) string {
	total := int(remaining.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
