package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Frame types sent to clients besides engine events.
const (
	frameLocationAck = "location:ack"
	framePong        = "pong"
	frameError       = "error"
)

var (
	errMalformedFrame = &service.Error{Kind: service.KindValidation, Code: "malformed_frame", Message: "frame is not valid JSON"}
	errUnknownFrame   = &service.Error{Kind: service.KindValidation, Code: "unknown_frame", Message: "unknown frame type"}
)

// Client is one websocket connection. Writes go through a buffered channel
// drained by a single writer goroutine.
type Client struct {
	UserID string
	Role   model.Role

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a connection for actor.
func NewClient(actor model.Actor, conn *websocket.Conn) *Client {
	return &Client{
		UserID: actor.ID,
		Role:   actor.Role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the writer, which closes the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// inbound is a frame sent by a client.
type inbound struct {
	Type        string            `json:"type"`
	Lat         *float64          `json:"lat"`
	Lon         *float64          `json:"lon"`
	Bearing     *float64          `json:"bearing,omitempty"`
	VehicleType model.VehicleType `json:"vehicleType,omitempty"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump blocks until the connection fails, passing each decoded frame
// to handle.
func (c *Client) readPump(handle func(inbound)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f inbound
		if err := json.Unmarshal(data, &f); err != nil {
			c.Send(errorFrame(errMalformedFrame))
			continue
		}
		handle(f)
	}
}

func frame(name string, payload any) []byte {
	msg, _ := json.Marshal(model.Event{Name: name, Payload: payload, At: time.Now()})
	return msg
}

func errorFrame(err error) []byte {
	code, message := "internal_error", "internal error"
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		code, message = svcErr.Code, svcErr.Message
	}
	return frame(frameError, map[string]string{"code": code, "message": message})
}
