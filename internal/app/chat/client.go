/*
Package chat contains the relay's real-time core.

This file defines the Client struct, the WebSocket implementation of Conn. Each
Client runs a ReadPump that decodes inbound events and hands them to the
Coordinator, and a WritePump that is the only writer on the socket.
*/
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum inbound frame size: a full-size profile picture plus envelope and token.
	maxMessageSize = MaxImageDataLength + 64*1024

	// number of outbound frames queued per client before new ones are dropped.
	sendBufferSize = 256
)

// Client is a WebSocket connection bound to the Coordinator.
type Client struct {
	id string

	coordinator *Coordinator

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// closed once Close is called; tells WritePump to flush and send the close frame.
	quit      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(coordinator *Coordinator, wsConn *websocket.Conn) *Client {
	id := randx.ConnID()

	return &Client{
		id:          id,
		coordinator: coordinator,
		conn:        wsConn,
		send:        make(chan []byte, sendBufferSize),
		quit:        make(chan struct{}),
		logger:      logx.Logger().With().Str("conn_id", id).Logger(),
	}
}

// ID implements Conn.
func (c *Client) ID() string {
	return c.id
}

// Send implements Conn. The event is queued for WritePump; it is dropped when the
// client is closed or its queue is full.
func (c *Client) Send(evt Event) {
	select {
	case <-c.quit:
		return
	default:
	}

	messageBytes, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(evt.Type)).Msg("Error marshaling event for client")
		return
	}

	select {
	case c.send <- messageBytes:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Str("event", string(evt.Type)).Msg("Client send channel full, dropping event")
	}
}

// Close implements Conn. WritePump drains what is already queued, writes a close
// frame carrying code and reason, and closes the socket.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.quit)
	})
}

// ReadPump reads frames until the socket fails or closes, then disconnects the
// client from the Coordinator.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(messageBytes)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.coordinator.Disconnect(c)
	c.Close(websocket.CloseNormalClosure, "")
}

// processInboundMessage decodes one frame and dispatches it. A panic while
// handling it only affects this frame.
func (c *Client) processInboundMessage(messageBytes []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Recovered from panic while handling inbound event")
		}
	}()

	var inbound InboundEvent
	if err := json.Unmarshal(messageBytes, &inbound); err != nil {
		c.logger.Warn().Err(err).Int("size", len(messageBytes)).Msg("Client sent invalid JSON")
		return
	}

	switch inbound.Type {
	case EventJoin:
		var payload JoinPayload
		if c.decode(inbound, &payload) {
			c.coordinator.Join(payload.Token, c)
		}

	case EventMessage:
		var payload SendMessagePayload
		if c.decode(inbound, &payload) {
			c.coordinator.Message(payload.Token, payload.Text, c)
		}

	case EventProfilePicture:
		var payload ProfilePicturePayload
		if c.decode(inbound, &payload) {
			c.coordinator.ProfileUpdate(payload.Token, payload.ImageData, c)
		}

	default:
		c.logger.Warn().Str("event", string(inbound.Type)).Msg("Client sent unsupported event type")
	}
}

func (c *Client) decode(inbound InboundEvent, dst any) bool {
	if len(inbound.Payload) == 0 {
		return true
	}

	if err := json.Unmarshal(inbound.Payload, dst); err != nil {
		c.logger.Warn().Err(err).Str("event", string(inbound.Type)).Msg("Client sent invalid payload")
		return false
	}
	return true
}

// WritePump writes queued frames and heartbeats until the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.quit:
			c.flushAndClose()
			return
		}
	}
}

// flushAndClose writes whatever is still queued, then the close frame.
func (c *Client) flushAndClose() {
	for {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}
		default:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.CloseMessage, c.closeMsg); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close message")
			}
			return
		}
	}
}

// writeQueuedMessage writes one text frame. It returns false if the socket is unusable.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Info().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a heartbeat Ping. It returns false if the socket is unusable.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Info().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
