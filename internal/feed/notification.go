package feed

import (
	"strconv"
	"time"
)

// Category tags a notification with the workflow record it belongs to. The
// set is open: unknown tags pass through untouched and the presentation side
// decides what to do with them.
type Category string

const (
	CategoryPHC       Category = "phc"
	CategoryWorkOrder Category = "work order"
	CategoryLog       Category = "log"
	CategoryInvoice   Category = "invoice"
)

// Identity identifies one notification within the feed.
//
// Durable identities come from the backend and survive reloads. Ephemeral
// identities are synthesized from wall-clock time for push events that have
// no backend row; they are valid for the current session only and must never
// reach the mark-read endpoint.
type Identity string

// Durable reports whether the identity is backend-persisted. Synthesized
// identities are plain decimal millisecond timestamps, so any non-digit
// character marks the identity as durable.
func (id Identity) Durable() bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

// EphemeralIdentity synthesizes a session-local identity from t.
func EphemeralIdentity(t time.Time) Identity {
	return Identity(strconv.FormatInt(t.UnixMilli(), 10))
}

// Notification is the canonical feed entry. Every origin shape (bulk record,
// push event) is normalized into this form before it reaches the aggregator.
type Notification struct {
	Identity  Identity       `json:"identity"`
	Category  Category       `json:"category"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at"`
}

// Unread reports whether the entry has not been marked read.
func (n *Notification) Unread() bool {
	return n.ReadAt == nil
}

// BulkRecord is the wire shape of a persisted notification returned by the
// bulk-fetch endpoint. The category lives nested under the data bag for
// records the backend synthesized from workflow events, and at the top level
// otherwise.
type BulkRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at"`
}

// Normalize maps a bulk record into the canonical notification form.
func (r BulkRecord) Normalize() Notification {
	category := r.Type
	if nested, ok := r.Data["type"].(string); ok && nested != "" {
		category = nested
	}
	message := r.Message
	if nested, ok := r.Data["message"].(string); ok && message == "" {
		message = nested
	}
	return Notification{
		Identity:  Identity(r.ID),
		Category:  Category(category),
		Title:     r.Title,
		Message:   message,
		Payload:   r.Data,
		CreatedAt: r.CreatedAt,
		ReadAt:    r.ReadAt,
	}
}

// Event is one push delivery after transport decoding. Channel broadcasts
// carry the addressed user list; private per-user deliveries leave UserIDs
// empty because the transport already scoped them.
type Event struct {
	ID        string
	Category  Category
	Title     string
	Message   string
	UserIDs   []int64
	Payload   map[string]any
	CreatedAt time.Time
}

// AddressedTo reports whether the event should be accepted by userID. Events
// without an address list are user-scoped deliveries and always accepted.
func (e Event) AddressedTo(userID int64) bool {
	if len(e.UserIDs) == 0 {
		return true
	}
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
