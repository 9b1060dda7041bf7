package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
	"github.com/shiva/ridedispatch/pkg/logger"
)

const frameTimeout = 5 * time.Second

// DriverLocator is the part of the driver registry the socket uses.
type DriverLocator interface {
	Get(ctx context.Context, driverID string) (*model.DriverState, error)
	UpdateLocation(ctx context.Context, actor model.Actor, in service.LocationInput) (*model.DriverState, error)
}

// Handler upgrades GET /ws and serves one client per connection. It must
// run behind middleware.Identity.
type Handler struct {
	hub      *Hub
	drivers  DriverLocator
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler creates the websocket endpoint.
func NewHandler(hub *Hub, drivers DriverLocator) *Handler {
	return &Handler{
		hub:     hub,
		drivers: drivers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.Named("realtime"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("user_id", actor.ID), zap.Error(err))
		return
	}

	c := NewClient(actor, conn)
	h.hub.Register(c)
	h.seedPosition(actor)
	h.log.Info("client connected", zap.String("user_id", actor.ID), zap.String("role", string(actor.Role)))

	go c.writePump()
	c.readPump(func(f inbound) { h.handleFrame(c, actor, f) })

	h.hub.Unregister(c)
	c.Close()
	h.log.Info("client disconnected", zap.String("user_id", actor.ID))
}

// seedPosition loads a reconnecting driver's last known position so they
// can be picked for nearest-driver routing before their next report.
func (h *Handler) seedPosition(actor model.Actor) {
	if actor.Role != model.RoleDriver || h.drivers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	if d, err := h.drivers.Get(ctx, actor.ID); err == nil && d.Location != nil {
		h.hub.UpdatePosition(actor.ID, d.Location.Point())
	}
}

func (h *Handler) handleFrame(c *Client, actor model.Actor, f inbound) {
	switch f.Type {
	case "location":
		if actor.Role != model.RoleDriver || h.drivers == nil {
			c.Send(errorFrame(service.ErrActorNotAllowed.WithMessage("only drivers report locations")))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		defer cancel()
		st, err := h.drivers.UpdateLocation(ctx, actor, service.LocationInput{
			Lat:         f.Lat,
			Lon:         f.Lon,
			Bearing:     f.Bearing,
			VehicleType: f.VehicleType,
		})
		if err != nil {
			if service.KindOf(err) == 0 {
				h.log.Error("location update failed", zap.String("driver_id", actor.ID), zap.Error(err))
			}
			c.Send(errorFrame(err))
			return
		}
		h.hub.UpdatePosition(actor.ID, st.Location.Point())
		c.Send(frame(frameLocationAck, st))

	case "ping":
		c.Send(frame(framePong, nil))

	default:
		c.Send(errorFrame(errUnknownFrame.WithMessage("unknown frame type %q", f.Type)))
	}
}
