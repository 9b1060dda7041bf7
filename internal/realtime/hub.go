// Package realtime delivers engine events to connected clients over
// websockets and, optionally, to a Kafka topic.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
	"github.com/shiva/ridedispatch/pkg/logger"
	"github.com/shiva/ridedispatch/pkg/metrics"
)

// Hub is the connection index. One connection per user; a newer connection
// replaces the older one.
//
// Routing:
//   - booking:update, booking:assigned → the booking's passenger, its driver
//     and every connected dispatcher or admin.
//   - booking:new → the nearest connected driver within the notify radius,
//     otherwise every connected driver.
//   - anything else → everyone.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	positions map[string]model.Location

	notifyKm float64
	log      *zap.Logger
}

// NewHub creates a hub. notifyKm <= 0 selects the default notify radius.
func NewHub(notifyKm float64) *Hub {
	if notifyKm <= 0 {
		notifyKm = service.DefaultNotifyRadiusKm
	}
	return &Hub{
		clients:   make(map[string]*Client),
		positions: make(map[string]model.Location),
		notifyKm:  notifyKm,
		log:       logger.Named("realtime"),
	}
}

// Register adds c, closing any earlier connection of the same user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.UserID]
	h.clients[c.UserID] = c
	n := len(h.clients)
	h.mu.Unlock()

	if old != nil && old != c {
		old.Close()
	}
	metrics.ConnectedClients.Set(float64(n))
	h.log.Debug("client registered", zap.String("user_id", c.UserID), zap.String("role", string(c.Role)))
}

// Unregister removes c. A connection that was already replaced does not
// evict its successor.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.UserID]; ok && cur == c {
		delete(h.clients, c.UserID)
		delete(h.positions, c.UserID)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(n))
	h.log.Debug("client unregistered", zap.String("user_id", c.UserID))
}

// Client returns the live connection of a user.
func (h *Hub) Client(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	return c, ok
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UpdatePosition records the last position of a connected driver for
// nearest-driver routing. Unknown users are ignored.
func (h *Hub) UpdatePosition(driverID string, loc model.Location) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[driverID]; ok && c.Role == model.RoleDriver {
		h.positions[driverID] = loc
	}
}

// Publish routes evt to the connected clients it concerns. Delivery is best
// effort: a client whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, evt model.Event) error {
	msg, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Name, err)
	}

	switch evt.Name {
	case model.EventBookingNew:
		h.notifyNew(evt, msg)
	case model.EventBookingUpdate, model.EventBookingAssigned:
		h.sendWhere(msg, func(c *Client) bool {
			switch {
			case c.Role == model.RoleDispatcher, c.Role == model.RoleAdmin:
				return true
			case c.Role == model.RolePassenger:
				return c.UserID == evt.PassengerID
			case c.Role == model.RoleDriver:
				return evt.DriverID != "" && c.UserID == evt.DriverID
			}
			return false
		})
	default:
		h.sendWhere(msg, func(*Client) bool { return true })
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.positions = make(map[string]model.Location)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	metrics.ConnectedClients.Set(0)
}

func (h *Hub) notifyNew(evt model.Event, msg []byte) {
	if evt.Pickup != nil {
		if target, ok := service.SelectNotificationTarget(*evt.Pickup, h.candidates(), h.notifyKm); ok {
			if c, live := h.Client(target.DriverID); live {
				c.Send(msg)
				metrics.NotificationRouting.WithLabelValues("nearest").Inc()
				h.log.Debug("new booking routed to nearest driver",
					zap.String("booking_id", evt.BookingID),
					zap.String("driver_id", target.DriverID),
				)
				return
			}
		}
	}
	metrics.NotificationRouting.WithLabelValues("broadcast").Inc()
	h.sendWhere(msg, func(c *Client) bool { return c.Role == model.RoleDriver })
}

// candidates returns connected drivers with a known position, ordered by id
// so equal distances resolve the same way every time.
func (h *Hub) candidates() []service.Candidate {
	h.mu.RLock()
	out := make([]service.Candidate, 0, len(h.positions))
	for id, loc := range h.positions {
		if c, ok := h.clients[id]; ok && c.Role == model.RoleDriver {
			out = append(out, service.Candidate{DriverID: id, Location: loc})
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (h *Hub) sendWhere(msg []byte, match func(*Client) bool) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Send(msg) {
			h.log.Warn("dropped event for slow client", zap.String("user_id", c.UserID))
		}
	}
}
