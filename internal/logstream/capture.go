package logstream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/events/bus"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// dedupWindow collapses identical engine records emitted in a burst.
const dedupWindow = 100 * time.Millisecond

// Record is one structured record received from the engine or a server
// component, before canonicalization.
type Record struct {
	Timestamp  time.Time
	Level      protocol.Level
	EventType  protocol.EventType
	LoggerName string
	Message    string
	Metadata   map[string]interface{}
}

// Capture adapts records into canonical LogEvents: it sanitizes
// metadata, appends to the bounded ring, and publishes on the bus.
// Identical records (same event type and message) arriving within
// dedupWindow are collapsed to one event.
type Capture struct {
	ring   *Ring
	bus    bus.EventBus
	logger *logger.Logger

	mu           sync.Mutex
	lastType     protocol.EventType
	lastMessage  string
	lastEmitTime time.Time
}

// NewCapture creates a capture writing into ring and publishing on b.
func NewCapture(ring *Ring, b bus.EventBus, log *logger.Logger) *Capture {
	return &Capture{
		ring:   ring,
		bus:    b,
		logger: log.WithFields(zap.String("component", "log_capture")),
	}
}

// Emit canonicalizes and publishes a record. Returns the emitted event,
// or nil when the record was collapsed as a duplicate.
func (c *Capture) Emit(ctx context.Context, rec Record) *protocol.LogEvent {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Level == "" {
		rec.Level = protocol.LevelInfo
	}
	if rec.EventType == "" {
		rec.EventType = protocol.EventTypeLog
	}

	c.mu.Lock()
	if rec.EventType == c.lastType && rec.Message == c.lastMessage &&
		rec.Timestamp.Sub(c.lastEmitTime) < dedupWindow {
		c.mu.Unlock()
		c.logger.Debug("Collapsed duplicate record",
			zap.String("event_type", string(rec.EventType)))
		return nil
	}
	c.lastType = rec.EventType
	c.lastMessage = rec.Message
	c.lastEmitTime = rec.Timestamp
	c.mu.Unlock()

	event := protocol.LogEvent{
		Timestamp:  protocol.At(rec.Timestamp),
		Level:      rec.Level,
		EventType:  rec.EventType,
		LoggerName: rec.LoggerName,
		Message:    rec.Message,
		Metadata:   protocol.SanitizeMetadata(rec.Metadata),
	}

	seq := c.ring.Append(event)

	busEvent := bus.NewEvent(bus.SubjectLogEvent, "log_capture", event)
	busEvent.Seq = seq
	if err := c.bus.Publish(ctx, bus.SubjectLogEvent, busEvent); err != nil {
		c.logger.Error("Failed to publish log event", zap.Error(err))
	}

	return &event
}

// Recent returns up to n most recent events in insertion order, plus
// the ring's high-water sequence at the time of the snapshot.
func (c *Capture) Recent(n int) ([]protocol.LogEvent, uint64) {
	return c.ring.Snapshot(n)
}
