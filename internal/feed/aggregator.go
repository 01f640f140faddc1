package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher loads the persisted notification set from the backend.
type Fetcher interface {
	FetchNotifications(ctx context.Context) ([]BulkRecord, error)
}

// ReadMarker reconciles read state for a durable identity with the backend.
type ReadMarker interface {
	MarkRead(ctx context.Context, id string) error
}

// Toaster receives a transient arrival alert for each accepted push event.
// Implementations must not block; the alert has no bearing on feed state.
type Toaster interface {
	Push(category, message string)
}

// ReadCache mirrors read identities locally. It is non-authoritative and
// best effort: implementations swallow their own failures.
type ReadCache interface {
	MarkRead(identity string, at time.Time)
	ReadMarks() map[string]time.Time
}

const defaultSeenCapacity = 4096

// Options configures an Aggregator. Fetcher, Marker, Toaster and Cache may
// each be nil, which disables the corresponding side effect.
type Options struct {
	UserID       int64
	Fetcher      Fetcher
	Marker       ReadMarker
	Toaster      Toaster
	Cache        ReadCache
	SeenCapacity int
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Aggregator owns the in-memory notification feed for one authenticated
// user. It merges the initial bulk load with push deliveries into a single
// deduplicated, newest-first-by-arrival feed and mediates read-state
// changes. All methods are safe for concurrent use; the feed has exactly one
// writer path guarded by the mutex.
type Aggregator struct {
	mu    sync.Mutex
	feed  []*Notification
	index map[Identity]*Notification
	seen  map[Category]*seenSet

	userID  int64
	seenCap int
	now     func() time.Time

	fetcher Fetcher
	marker  ReadMarker
	toaster Toaster
	cache   ReadCache
	logger  *zap.Logger
}

// New creates an aggregator. The feed starts empty; call Initialize to run
// the bulk fetch.
func New(opts Options) *Aggregator {
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = defaultSeenCapacity
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Aggregator{
		index:   make(map[Identity]*Notification),
		seen:    make(map[Category]*seenSet),
		userID:  opts.UserID,
		seenCap: opts.SeenCapacity,
		now:     opts.Clock,
		fetcher: opts.Fetcher,
		marker:  opts.Marker,
		toaster: opts.Toaster,
		cache:   opts.Cache,
		logger:  opts.Logger,
	}
}

// Initialize runs the bulk fetch and replaces the feed with the result, in
// the order the backend returned it. A fetch failure is non-fatal: it is
// logged and the feed stays empty. Without an authenticated user the call is
// a no-op.
func (a *Aggregator) Initialize(ctx context.Context) {
	if a.userID == 0 || a.fetcher == nil {
		return
	}

	records, err := a.fetcher.FetchNotifications(ctx)
	if err != nil {
		a.logger.Warn("bulk fetch failed, starting with empty feed", zap.Error(err))
		return
	}

	marks := a.readMarks()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.feed = a.feed[:0]
	a.index = make(map[Identity]*Notification, len(records))
	for _, rec := range records {
		n := rec.Normalize()
		if n.Identity == "" {
			continue
		}
		if _, ok := a.index[n.Identity]; ok {
			continue
		}
		a.applyCachedMark(&n, marks)
		a.seenFor(n.Category).Add(n.Identity)
		entry := n
		a.feed = append(a.feed, &entry)
		a.index[entry.Identity] = &entry
	}

	a.logger.Info("feed initialized", zap.Int("notifications", len(a.feed)))
}

// HandleEvent ingests one push delivery. Events not addressed to the current
// user and redeliveries of an already-seen identity are discarded silently.
// Accepted events are created unread and prepended to the feed: new arrivals
// always sort before existing entries regardless of their own created_at,
// which can diverge from chronological order under delayed delivery. That
// matches the display contract and is intentional.
func (a *Aggregator) HandleEvent(ev Event) {
	if !ev.AddressedTo(a.userID) {
		return
	}
	if ev.ID == "" && ev.Message == "" {
		a.logger.Debug("discarding malformed push event", zap.String("category", string(ev.Category)))
		return
	}

	a.mu.Lock()
	identity := Identity(ev.ID)
	if identity == "" {
		identity = EphemeralIdentity(a.now())
	}
	// The seen-set is capacity-bounded, so an evicted identity could pass
	// it on redelivery; the feed index keeps uniqueness absolute.
	if _, ok := a.index[identity]; ok {
		a.mu.Unlock()
		return
	}
	set := a.seenFor(ev.Category)
	if set.Has(identity) {
		a.mu.Unlock()
		return
	}
	set.Add(identity)

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.now()
	}
	n := &Notification{
		Identity:  identity,
		Category:  ev.Category,
		Title:     ev.Title,
		Message:   ev.Message,
		Payload:   ev.Payload,
		CreatedAt: createdAt,
		ReadAt:    nil,
	}
	a.feed = append([]*Notification{n}, a.feed...)
	a.index[identity] = n
	a.mu.Unlock()

	a.logger.Debug("notification accepted",
		zap.String("identity", string(identity)),
		zap.String("category", string(ev.Category)),
	)

	if a.toaster != nil {
		a.toaster.Push(string(ev.Category), ev.Message)
	}
}

// MarkRead marks one feed entry read. The local transition is optimistic and
// immediate; for durable identities a backend reconciliation call follows,
// and a failure there is logged without rolling the local state back. The
// operation is idempotent: a second call on the same identity changes
// nothing and issues no further backend call. Ephemeral identities never
// reach the backend.
func (a *Aggregator) MarkRead(ctx context.Context, id Identity) {
	a.mu.Lock()
	n, ok := a.index[id]
	if !ok || !n.Unread() {
		a.mu.Unlock()
		return
	}
	readAt := a.now()
	n.ReadAt = &readAt
	a.mu.Unlock()

	if a.cache != nil {
		a.cache.MarkRead(string(id), readAt)
	}

	if !id.Durable() || a.marker == nil {
		return
	}
	if err := a.marker.MarkRead(ctx, string(id)); err != nil {
		// Read state is allowed to drift client-side; the next
		// reconciliation fetch squares it up.
		a.logger.Warn("mark-read not persisted", zap.String("identity", string(id)), zap.Error(err))
	}
}

// MarkAllRead marks every currently-unread entry read, one identity at a
// time. No ordering is guaranteed between the individual backend calls.
func (a *Aggregator) MarkAllRead(ctx context.Context) {
	a.mu.Lock()
	unread := make([]Identity, 0, len(a.feed))
	for _, n := range a.feed {
		if n.Unread() {
			unread = append(unread, n.Identity)
		}
	}
	a.mu.Unlock()

	for _, id := range unread {
		a.MarkRead(ctx, id)
	}
}

// UnreadCount returns the number of feed entries without a read timestamp.
func (a *Aggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, n := range a.feed {
		if n.Unread() {
			count++
		}
	}
	return count
}

// RecentWindow returns the entries whose created_at falls within the
// trailing days-day window from now, boundary included, in feed order.
func (a *Aggregator) RecentWindow(days int) []Notification {
	cutoff := a.now().Add(-time.Duration(days) * 24 * time.Hour)

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Notification, 0, len(a.feed))
	for _, n := range a.feed {
		if !n.CreatedAt.Before(cutoff) {
			out = append(out, *n)
		}
	}
	return out
}

// Snapshot returns a copy of the full feed in display order.
func (a *Aggregator) Snapshot() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Notification, len(a.feed))
	for i, n := range a.feed {
		out[i] = *n
	}
	return out
}

// Reconcile re-runs the bulk fetch and merges the result into the live feed:
// server-side read marks are applied to matching unread entries, and records
// the feed has never seen are appended. Local read marks are never reverted,
// so read_at stays monotonic even when the backend missed an earlier
// mark-read call.
func (a *Aggregator) Reconcile(ctx context.Context) {
	if a.userID == 0 || a.fetcher == nil {
		return
	}

	records, err := a.fetcher.FetchNotifications(ctx)
	if err != nil {
		a.logger.Warn("reconcile fetch failed", zap.Error(err))
		return
	}

	marks := a.readMarks()

	a.mu.Lock()
	defer a.mu.Unlock()

	merged, appended := 0, 0
	for _, rec := range records {
		n := rec.Normalize()
		if n.Identity == "" {
			continue
		}
		if existing, ok := a.index[n.Identity]; ok {
			if existing.Unread() && n.ReadAt != nil {
				readAt := *n.ReadAt
				existing.ReadAt = &readAt
				merged++
			}
			continue
		}
		a.applyCachedMark(&n, marks)
		a.seenFor(n.Category).Add(n.Identity)
		entry := n
		a.feed = append(a.feed, &entry)
		a.index[entry.Identity] = &entry
		appended++
	}

	if merged > 0 || appended > 0 {
		a.logger.Info("feed reconciled", zap.Int("read_marks_merged", merged), zap.Int("appended", appended))
	}
}

// ReconcileLoop runs Reconcile every interval until ctx is cancelled. An
// interval of zero disables reconciliation and returns immediately.
func (a *Aggregator) ReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Reconcile(ctx)
		}
	}
}

func (a *Aggregator) seenFor(category Category) *seenSet {
	set, ok := a.seen[category]
	if !ok {
		set = newSeenSet(a.seenCap)
		a.seen[category] = set
	}
	return set
}

func (a *Aggregator) readMarks() map[string]time.Time {
	if a.cache == nil {
		return nil
	}
	return a.cache.ReadMarks()
}

// applyCachedMark pre-marks a fetched record read when the local mirror
// remembers it and the backend does not. The mirror is non-authoritative: a
// server-side read_at always wins.
func (a *Aggregator) applyCachedMark(n *Notification, marks map[string]time.Time) {
	if n.ReadAt != nil || marks == nil {
		return
	}
	if at, ok := marks[string(n.Identity)]; ok {
		readAt := at
		n.ReadAt = &readAt
	}
}
