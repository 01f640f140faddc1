package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opsdeck/notifyd/internal/feed"
	"github.com/opsdeck/notifyd/internal/toast"
	"github.com/opsdeck/notifyd/pkg/response"
)

const defaultRecentDays = 7

// FeedHandler exposes the aggregated feed to presentation shells. The views
// are read-only; the only mutations they can request are the mark-read
// callbacks, matching the feed's ownership contract.
type FeedHandler struct {
	agg        *feed.Aggregator
	tray       *toast.Tray
	recentDays int
	logger     *zap.Logger
}

// NewFeedHandler creates the handler. recentDays is the window served when a
// request does not name one; non-positive values fall back to the default.
func NewFeedHandler(agg *feed.Aggregator, tray *toast.Tray, recentDays int, logger *zap.Logger) *FeedHandler {
	if recentDays <= 0 {
		recentDays = defaultRecentDays
	}
	return &FeedHandler{
		agg:        agg,
		tray:       tray,
		recentDays: recentDays,
		logger:     logger,
	}
}

// List returns the full feed, newest-first by arrival.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.agg.Snapshot())
}

// Recent returns the trailing window of the feed for space-constrained
// views like the bell dropdown. Defaults to the configured window.
func (h *FeedHandler) Recent(w http.ResponseWriter, r *http.Request) {
	days := h.recentDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, "invalid days parameter")
			return
		}
		days = parsed
	}
	response.OK(w, h.agg.RecentWindow(days))
}

// UnreadCount returns the badge count.
func (h *FeedHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]int{"unread": h.agg.UnreadCount()})
}

// MarkRead marks one entry read. Always succeeds from the caller's point of
// view: unknown and already-read identities are no-ops.
func (h *FeedHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "missing notification id")
		return
	}

	h.agg.MarkRead(r.Context(), feed.Identity(id))
	response.OK(w, map[string]string{"status": "success"})
}

// MarkAllRead marks every unread entry read.
func (h *FeedHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.agg.MarkAllRead(r.Context())
	response.OK(w, map[string]string{"status": "success"})
}

// Toasts returns the transient alerts that have not auto-dismissed yet.
func (h *FeedHandler) Toasts(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.tray.Active())
}
