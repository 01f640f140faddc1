package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opsdeck/notifyd/internal/feed"
)

// ChannelSpec names one push channel to listen on. Broadcast channels carry
// named events addressed via user_ids; private channels deliver directly to
// the current user and leave Event empty.
type ChannelSpec struct {
	Channel  string
	Event    string
	Category feed.Category
}

// Private reports whether the spec is a user-scoped channel.
func (s ChannelSpec) Private() bool {
	return s.Event == ""
}

// ParseChannelSpec parses a "channel:event:category" triplet, the form used
// in configuration. Private channels omit the event part: "channel::category".
func ParseChannelSpec(raw string) (ChannelSpec, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return ChannelSpec{}, fmt.Errorf("push: invalid channel spec %q, want channel:event:category", raw)
	}
	return ChannelSpec{
		Channel:  parts[0],
		Event:    parts[1],
		Category: feed.Category(parts[2]),
	}, nil
}

// frame is the transport envelope for one delivery.
type frame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// eventPayload is the payload shape shared by broadcast and private
// deliveries. Broadcast events carry user_ids; persisted records carry an id.
type eventPayload struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message"`
	UserIDs   []int64        `json:"user_ids,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Handler receives each decoded delivery. The aggregator's HandleEvent is
// the production handler; dedup and addressing stay its responsibility, the
// subscriber only decodes and forwards.
type Handler func(feed.Event)

// Subscriber dials the push transport and manages one connection per
// subscribed channel.
type Subscriber struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	handler Handler
	logger  *zap.Logger
}

// NewSubscriber creates a subscriber for the transport at wsURL. The session
// credential rides along as a bearer header on the upgrade request.
func NewSubscriber(wsURL, token string, handler Handler, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		url:     wsURL,
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handler: handler,
		logger:  logger,
	}
}

// Subscribe opens one push listener. Each subscription owns its own
// connection, so tearing one down never affects the others. There is no
// automatic reconnect: when the transport drops, delivery for that channel
// ends and the closure is logged.
func (s *Subscriber) Subscribe(ctx context.Context, spec ChannelSpec) (*Subscription, error) {
	dialURL := s.url + "?channel=" + url.QueryEscape(spec.Channel)
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("push: subscribing to %s: status %d: %w", spec.Channel, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("push: subscribing to %s: %w", spec.Channel, err)
	}

	sub := &Subscription{
		ID:     uuid.New(),
		spec:   spec,
		conn:   conn,
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("channel", spec.Channel)),
	}
	go sub.readPump(s.handler)

	s.logger.Info("subscribed to push channel",
		zap.String("channel", spec.Channel),
		zap.String("event", spec.Event),
		zap.String("category", string(spec.Category)),
	)
	return sub, nil
}

// Subscription is a live push listener for one channel.
type Subscription struct {
	ID     uuid.UUID
	spec   ChannelSpec
	conn   *websocket.Conn
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	logger *zap.Logger
}

// Close stops delivery for this channel. Already-delivered notifications are
// untouched; only future delivery ends.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

// Done is closed once the read loop has exited, whether by Close or by a
// transport failure.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) readPump(handler Handler) {
	defer close(s.done)
	defer s.conn.Close()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if !s.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("push connection lost", zap.Error(err))
			}
			return
		}
		// Broadcast channels multiplex event names; only the subscribed
		// one is ours.
		if s.spec.Event != "" && f.Event != s.spec.Event {
			continue
		}

		var p eventPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.logger.Debug("discarding undecodable push payload", zap.Error(err))
			continue
		}

		category := s.spec.Category
		if p.Type != "" {
			category = feed.Category(p.Type)
		}
		handler(feed.Event{
			ID:        p.ID,
			Category:  category,
			Title:     p.Title,
			Message:   p.Message,
			UserIDs:   p.UserIDs,
			Payload:   p.Data,
			CreatedAt: p.CreatedAt,
		})
	}
}
