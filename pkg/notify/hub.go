// Ephemeral UI feedback state for the dashboard: auto-dismissing
// notifications, a single loading overlay and per-element loading snapshots.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/function61/gokit/logex"
)

const DefaultDuration = 5 * time.Second

type Level int

const (
	Success Level = iota
	Error
	Warning
	Info
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

func (l Level) Icon() string {
	switch l {
	case Success:
		return "✅"
	case Error:
		return "❌"
	case Warning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// ANSI color for terminal-facing sinks
func (l Level) Color() string {
	switch l {
	case Success:
		return "\033[32m"
	case Error:
		return "\033[31m"
	case Warning:
		return "\033[33m"
	default:
		return "\033[36m"
	}
}

type Notification struct {
	ID      int
	Level   Level
	Message string
	ShownAt time.Time

	expiresAt time.Time
}

// Sink receives every pushed notification, e.g. for delivery to the admin
// reports channel.
type Sink interface {
	Deliver(n Notification) error
}

// Hub is an explicit per-session instance; there is no package-level hub.
type Hub struct {
	mu             sync.Mutex
	nextID         int
	active         []Notification
	overlayVisible bool
	snapshots      map[string]string
	duration       time.Duration
	now            func() time.Time
	sinks          []Sink
	logl           *logex.Leveled
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		nextID:    1,
		snapshots: map[string]string{},
		duration:  DefaultDuration,
		now:       time.Now,
		logl:      logex.Levels(logger),
	}
}

func (h *Hub) AddSink(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sinks = append(h.sinks, sink)
}

// Push shows a notification that auto-dismisses after the default duration.
func (h *Hub) Push(level Level, message string) int {
	return h.PushFor(level, message, h.duration)
}

func (h *Hub) PushFor(level Level, message string, duration time.Duration) int {
	h.mu.Lock()

	now := h.now()
	notification := Notification{
		ID:        h.nextID,
		Level:     level,
		Message:   message,
		ShownAt:   now,
		expiresAt: now.Add(duration),
	}
	h.nextID++
	h.active = append(h.active, notification)
	sinks := append([]Sink{}, h.sinks...)

	h.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Deliver(notification); err != nil {
			h.logl.Error.Printf("sink delivery: %v", err)
		}
	}

	return notification.ID
}

// Active returns notifications that have not yet auto-dismissed. Expired ones
// are dropped here, mirroring the cache's lazy expiry.
func (h *Hub) Active() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	kept := h.active[:0]
	for _, notification := range h.active {
		if notification.expiresAt.After(now) {
			kept = append(kept, notification)
		}
	}
	h.active = kept

	return append([]Notification{}, h.active...)
}

func (h *Hub) Dismiss(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for idx, notification := range h.active {
		if notification.ID == id {
			h.active = append(h.active[:idx], h.active[idx+1:]...)
			return true
		}
	}

	return false
}

func (h *Hub) ShowOverlay() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.overlayVisible = true
}

func (h *Hub) HideOverlay() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.overlayVisible = false
}

func (h *Hub) OverlayVisible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.overlayVisible
}

// ShowLoading saves the element's prior content before a spinner replaces it.
// A second call for the same element overwrites the snapshot (last write
// wins).
func (h *Hub) ShowLoading(elementID string, currentContent string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots[elementID] = currentContent
}

// HideLoading restores and removes the saved snapshot. The second return
// tells whether one existed.
func (h *Hub) HideLoading(elementID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	content, found := h.snapshots[elementID]
	if found {
		delete(h.snapshots, elementID)
	}

	return content, found
}
