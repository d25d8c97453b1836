package stuck

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// maxReportActions bounds the action list rendered into a report.
const maxReportActions = 5

// suggestionQuestion is the canonical question posed to the user.
const suggestionQuestion = "What should it try differently?"

// Report is the detector's verdict when a trigger fires.
type Report struct {
	IsStuck          bool
	Reason           protocol.StuckReason
	AttemptedActions []string
	DurationSeconds  float64
	Suggestion       string
	Summary          string
}

// Payload renders the report as the agent_needs_help wire payload.
func (r *Report) Payload() protocol.AgentNeedsHelp {
	return protocol.AgentNeedsHelp{
		Reason:           r.Reason,
		Summary:          r.Summary,
		AttemptedActions: r.AttemptedActions,
		DurationSeconds:  r.DurationSeconds,
		Suggestion:       r.Suggestion,
	}
}

// compose builds the report for reason. Caller holds the lock.
func (d *Detector) compose(reason protocol.StuckReason, now time.Time) *Report {
	duration := now.Sub(d.taskStart).Seconds()

	tail := d.tail(maxReportActions)
	actions := make([]string, 0, len(tail))
	for _, rec := range tail {
		actions = append(actions, describeAction(rec))
	}

	return &Report{
		IsStuck:          true,
		Reason:           reason,
		AttemptedActions: actions,
		DurationSeconds:  duration,
		Suggestion:       suggestionQuestion,
		Summary:          renderSummary(reason, duration, actions),
	}
}

func describeAction(rec ActionRecord) string {
	mark := "✓"
	if !rec.Success {
		mark = "✗"
	}
	return fmt.Sprintf("%s %s", rec.ActionName, mark)
}

// renderSummary produces the markdown block shown in the extension UI.
func renderSummary(reason protocol.StuckReason, duration float64, actions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**The agent appears to be stuck: %s**\n\n", reason)
	fmt.Fprintf(&b, "It has been working for %.0f seconds.\n\n", duration)
	if len(actions) > 0 {
		b.WriteString("Recent actions:\n")
		for i, action := range actions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, action)
		}
		b.WriteString("\n")
	}
	b.WriteString(suggestionQuestion)
	return b.String()
}
