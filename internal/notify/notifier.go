// Package notify tracks the user-visible notification and the progress of the
// operation holding the busy gate, and publishes both to streaming clients.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/events"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	// KindBridge reports unattended scheduler actions and does not expire.
	KindBridge Kind = "bridge"
)

type Notification struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"type"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Progress is a phase plus completion percentage for one running operation.
type Progress struct {
	Operation string    `json:"operation"`
	Phase     string    `json:"phase"`
	Percent   int       `json:"percent"`
	PostID    string    `json:"postId,omitempty"`
	Done      bool      `json:"done"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

type Recorder interface {
	RecordNotification(ctx context.Context, kind string)
}

type Option func(*Notifier)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.metrics = r }
}

type Notifier struct {
	pub     Publisher
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.SugaredLogger
	metrics Recorder

	mu       sync.RWMutex
	current  *Notification
	progress *Progress
}

func New(pub Publisher, ttl time.Duration, logger *zap.SugaredLogger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	n := &Notifier{
		pub:    pub,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify replaces the current notification.
func (n *Notifier) Notify(ctx context.Context, kind Kind, message string) Notification {
	now := n.now()
	note := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
	}
	if kind != KindBridge && n.ttl > 0 {
		expires := now.Add(n.ttl)
		note.ExpiresAt = &expires
	}

	n.mu.Lock()
	n.current = &note
	n.mu.Unlock()

	if n.metrics != nil {
		n.metrics.RecordNotification(ctx, string(kind))
	}
	n.logger.Infow("Notification", "type", kind, "message", message)
	n.publish(ctx, events.ChannelNotifications, note)
	return note
}

// Current returns the live notification. Expired ones are dropped lazily.
func (n *Notifier) Current() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notification{}, false
	}
	if n.current.ExpiresAt != nil && !n.now().Before(*n.current.ExpiresAt) {
		n.current = nil
		return Notification{}, false
	}
	return *n.current, true
}

// Clear dismisses the current notification, bridge ones included.
func (n *Notifier) Clear(ctx context.Context) {
	n.mu.Lock()
	n.current = nil
	n.mu.Unlock()
	n.publish(ctx, events.ChannelNotifications, map[string]any{"cleared": true})
}

// Progress records and publishes a phase change.
func (n *Notifier) Progress(ctx context.Context, p Progress) {
	if p.At.IsZero() {
		p.At = n.now()
	}
	n.mu.Lock()
	n.progress = &p
	n.mu.Unlock()
	n.publish(ctx, events.ChannelProgress, p)
}

// Done marks operation finished and clears the progress slot.
func (n *Notifier) Done(ctx context.Context, operation string) {
	p := Progress{Operation: operation, Percent: 100, Done: true, At: n.now()}
	n.mu.Lock()
	n.progress = nil
	n.mu.Unlock()
	n.publish(ctx, events.ChannelProgress, p)
}

func (n *Notifier) LastProgress() (Progress, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.progress == nil {
		return Progress{}, false
	}
	return *n.progress, true
}

func (n *Notifier) publish(ctx context.Context, channel string, v any) {
	if n.pub == nil {
		return
	}
	if err := n.pub.Publish(ctx, channel, v); err != nil {
		n.logger.Warnw("Failed to publish event", "channel", channel, "error", err)
	}
}
