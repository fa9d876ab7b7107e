package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Client is one peer connection. Messages read from it are dispatched in
// arrival order from a single goroutine.
type Client struct {
	id         string
	conn       *websocket.Conn
	manager    *Manager
	direction  Direction
	remoteAddr string
	send       chan []byte
	log        *logrus.Entry

	mu     sync.Mutex
	closed bool
	local  bool
	cause  error
}

func newClient(id string, conn *websocket.Conn, manager *Manager, direction Direction, remoteAddr string) *Client {
	return &Client{
		id:         id,
		conn:       conn,
		manager:    manager,
		direction:  direction,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, manager.settings.SendBufferSize),
		log: logrus.WithFields(logrus.Fields{
			"component": "websocket",
			"conn":      id,
			"remote":    remoteAddr,
		}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Direction() Direction {
	return c.direction
}

// RemoteAddr is the dialed "host:port" for outbound connections and the
// socket address for inbound ones.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Emit queues a message without blocking. A full queue closes this
// connection.
func (c *Client) Emit(msgType MessageType, arg string) error {
	data, err := NewMessage(msgType, arg).Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	c.log.Warn("send buffer full, closing connection")
	c.terminate(true, ErrSendBufferFull)
	c.conn.Close()
	return ErrSendBufferFull
}

// Close stops accepting messages. The write pump flushes what is queued,
// then sends a close frame; the read pump exits once the remote answers or
// the write wait passes.
func (c *Client) Close() error {
	if !c.terminate(true, nil) {
		return ErrClosed
	}
	return nil
}

func (c *Client) terminate(local bool, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	c.local = local
	c.cause = cause
	close(c.send)
	return true
}

func (c *Client) termination() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local, c.cause
}

func (c *Client) ReadPump() {
	var readErr error
	defer func() {
		local, cause := c.termination()
		switch {
		case local:
			readErr = cause
		case readErr != nil && websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			readErr = nil
		}
		c.terminate(false, readErr)
		c.conn.Close()
		c.manager.unregister(c, readErr)
	}()

	if c.manager.settings.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.manager.settings.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.manager.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.settings.PongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			readErr = err
			return
		}

		messages, err := DecodeFrame(frame)
		if err != nil {
			c.log.WithError(err).Warn("dropping malformed envelopes")
		}
		for _, msg := range messages {
			c.manager.dispatch(c, msg)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.manager.settings.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.writeClose()
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.manager.settings.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.conn.Close()
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	deadline := time.Now().Add(c.manager.settings.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.conn.Close()
		return
	}
	c.conn.SetReadDeadline(deadline)
}
