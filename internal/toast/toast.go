// Package toast holds the transient arrival alerts shown when a push
// notification lands. Toasts are fire-and-forget: they auto-dismiss after a
// fixed duration and have no bearing on feed state.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTTL = 5 * time.Second

// Toast is one transient alert.
type Toast struct {
	ID        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Tray collects toasts and expires them lazily on read.
type Tray struct {
	mu     sync.Mutex
	toasts []Toast
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewTray creates a tray. A non-positive ttl falls back to the default.
func NewTray(ttl time.Duration, logger *zap.Logger) *Tray {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tray{
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Push records one alert. It never blocks.
func (t *Tray) Push(category, message string) {
	now := t.now()
	toast := Toast{
		ID:        uuid.New(),
		Category:  category,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}

	t.mu.Lock()
	t.toasts = append(t.toasts, toast)
	t.mu.Unlock()

	t.logger.Info("toast", zap.String("category", category), zap.String("message", message))
}

// Active returns the toasts that have not yet expired, dropping the rest.
func (t *Tray) Active() []Toast {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.toasts[:0]
	for _, toast := range t.toasts {
		if toast.ExpiresAt.After(now) {
			live = append(live, toast)
		}
	}
	t.toasts = live

	out := make([]Toast, len(live))
	copy(out, live)
	return out
}
