package conversation

import (
	"strings"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// Markers the assistant is instructed to emit once the user's goal is
// clear enough to execute. Matching is case-insensitive.
const (
	readyMarker      = "READY TO START"
	taskMarker       = "TASK:"
	confidenceMarker = "CONFIDENCE:"
)

// parseIntent extracts the structured intent from an assistant reply.
// Nil means the dialog is still clarifying: an intent exists only when
// the ready marker is present and the TASK: block yields non-empty
// text. Confidence is 1.0 when the reply carries an explicit
// confidence marker, 0.9 otherwise.
func parseIntent(reply string) *protocol.Intent {
	upper := strings.ToUpper(reply)
	if !strings.Contains(upper, readyMarker) {
		return nil
	}

	task := extractTask(reply)
	if task == "" {
		return nil
	}

	confidence := 0.9
	if hasConfidenceMarker(reply) {
		confidence = 1.0
	}
	return &protocol.Intent{
		TaskDescription: task,
		IsReady:         true,
		Confidence:      confidence,
	}
}

// extractTask returns the task text after the first TASK: marker, up to
// the end of the reply or the next blank line. Continuation lines are
// joined with single spaces.
func extractTask(reply string) string {
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		idx := strings.Index(strings.ToUpper(trimmed), taskMarker)
		if idx < 0 {
			continue
		}

		parts := []string{strings.TrimSpace(trimmed[idx+len(taskMarker):])}
		for _, rest := range lines[i+1:] {
			rest = strings.TrimSpace(rest)
			if rest == "" || strings.HasPrefix(strings.ToUpper(rest), confidenceMarker) {
				break
			}
			parts = append(parts, rest)
		}

		task := strings.TrimSpace(strings.Join(parts, " "))
		if task != "" {
			return task
		}
	}
	return ""
}

// hasConfidenceMarker reports whether any line of the reply starts with
// the confidence marker.
func hasConfidenceMarker(reply string) bool {
	for _, line := range strings.Split(reply, "\n") {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), confidenceMarker) {
			return true
		}
	}
	return false
}

// displayContent strips the machine markers from a reply so the user
// sees clean prose. The TASK: block is dropped through its last
// continuation line.
func displayContent(reply string) string {
	lines := strings.Split(reply, "\n")
	kept := lines[:0]
	inTask := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case inTask:
			if trimmed == "" {
				inTask = false
				kept = append(kept, line)
			}
		case strings.Contains(upper, readyMarker), strings.HasPrefix(upper, confidenceMarker):
		case strings.Contains(upper, taskMarker):
			inTask = true
		default:
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
