package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	BatchStarted Type = iota + 1
	ItemAdded
	ItemExcluded
	ItemStarted
	ItemHashed
	ItemVerified
	ItemFailed
	ItemCancelled
	BatchCancelled
	BatchCompleted
)

var typeNames = [...]string{
	BatchStarted:   "BatchStarted",
	ItemAdded:      "ItemAdded",
	ItemExcluded:   "ItemExcluded",
	ItemStarted:    "ItemStarted",
	ItemHashed:     "ItemHashed",
	ItemVerified:   "ItemVerified",
	ItemFailed:     "ItemFailed",
	ItemCancelled:  "ItemCancelled",
	BatchCancelled: "BatchCancelled",
	BatchCompleted: "BatchCompleted",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single lifecycle event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	RunID     string
	Path      string
	Algorithm string
	Digest    string // ItemHashed, ItemVerified
	Status    string
	Stream    string // size class of the item's stream
	Type      Type
	Size      int64 // file size; total files for batch events
	Duration  time.Duration
	WorkerID  int
}

// Level returns the log level an event should be recorded at.
func (e Event) Level() slog.Level {
	switch e.Type {
	case ItemFailed:
		return slog.LevelWarn
	case ItemStarted, ItemAdded:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Attrs renders the event as structured log attributes. Zero-valued
// optional fields are omitted.
func (e Event) Attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run", e.RunID))
	}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	attrs = append(attrs, slog.Int64("size", e.Size))
	if e.Algorithm != "" {
		attrs = append(attrs, slog.String("algo", e.Algorithm))
	}
	if e.Stream != "" {
		attrs = append(attrs, slog.String("stream", e.Stream), slog.Int("worker", e.WorkerID))
	}
	if e.Digest != "" {
		attrs = append(attrs, slog.String("digest", e.Digest))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}
	if e.Status != "" {
		attrs = append(attrs, slog.String("status", e.Status))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}
