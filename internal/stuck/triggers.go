package stuck

import (
	"strings"
	"time"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

const reasonNone = protocol.StuckReasonNone

// evaluate applies the triggers in priority order; first match wins.
// Caller holds the lock.
func (d *Detector) evaluate(now time.Time) protocol.StuckReason {
	if d.isRepeating() {
		return protocol.StuckReasonRepeating
	}
	if d.hasConsecutiveFailures() {
		return protocol.StuckReasonConsecutiveFailures
	}
	if d.hasStepTimeout() {
		return protocol.StuckReasonStepTimeout
	}
	if d.hasNoProgress(now) {
		return protocol.StuckReasonNoProgress
	}
	return reasonNone
}

// isRepeating reports whether the last repeatWindow records all failed
// on the same (or near-identical) action.
func (d *Detector) isRepeating() bool {
	tail := d.tail(d.repeatWindow)
	if len(tail) < d.repeatWindow {
		return false
	}
	first := normalizeActionName(tail[0].ActionName)
	for _, rec := range tail {
		if rec.Success {
			return false
		}
		if similarity(first, normalizeActionName(rec.ActionName)) < d.similarity {
			return false
		}
	}
	return true
}

// hasConsecutiveFailures reports whether the trailing records all
// failed, regardless of action names.
func (d *Detector) hasConsecutiveFailures() bool {
	tail := d.tail(d.repeatWindow)
	if len(tail) < d.repeatWindow {
		return false
	}
	for _, rec := range tail {
		if rec.Success {
			return false
		}
	}
	return true
}

// hasStepTimeout reports whether the most recent step overran Dmax.
func (d *Detector) hasStepTimeout() bool {
	if len(d.window) == 0 {
		return false
	}
	return d.window[len(d.window)-1].Duration > d.stepTimeout
}

// hasNoProgress reports whether no step succeeded within Tmax, counted
// from task start or the last success, whichever is later.
func (d *Detector) hasNoProgress(now time.Time) bool {
	since := d.taskStart
	if d.lastSuccess.After(since) {
		since = d.lastSuccess
	}
	return now.Sub(since) > d.noProgress
}

// tail returns the last n records of the window.
func (d *Detector) tail(n int) []ActionRecord {
	if len(d.window) < n {
		return d.window
	}
	return d.window[len(d.window)-n:]
}

func normalizeActionName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	return strings.Join(strings.Fields(name), "_")
}

// similarity is a normalized Levenshtein ratio in [0,1]; identical
// strings score 1.0.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	dist := levenshtein(a, b)
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return 1.0 - float64(dist)/float64(max)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
