package task

import (
	"context"
	"time"
)

// helpSlot is the single-slot rendezvous created on each entry into
// AWAITING_HELP. The resume event carries the user's guidance text; a
// timeout resolves the slot to empty guidance.
type helpSlot struct {
	ch chan string
}

func newHelpSlot() *helpSlot {
	return &helpSlot{ch: make(chan string, 1)}
}

// resolve delivers guidance into the slot. Returns false when the slot
// was already resolved.
func (s *helpSlot) resolve(text string) bool {
	select {
	case s.ch <- text:
		return true
	default:
		return false
	}
}

// wait blocks until guidance arrives, the timeout elapses, or ctx is
// cancelled. The second return is false when no guidance was received.
func (s *helpSlot) wait(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-s.ch:
		return text, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}
