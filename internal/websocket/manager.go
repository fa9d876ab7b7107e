package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// LifecycleHandler observes connections. Exactly one of ConnectionStopped or
// ConnectionErrored follows every ConnectionEstablished.
type LifecycleHandler interface {
	ConnectionEstablished(client *Client)
	ConnectionStopped(client *Client)
	ConnectionErrored(client *Client, err error)
}

type Settings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBufferSize int
	DialTimeout    time.Duration
	Path           string
}

func DefaultSettings() Settings {
	return Settings{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 10485760,
		SendBufferSize: 256,
		DialTimeout:    5 * time.Second,
		Path:           "/ws",
	}
}

// Manager is the connection pool shared by inbound and outbound peers.
type Manager struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex
	settings     Settings

	messageHandler MessageHandler
	lifecycle      LifecycleHandler
	log            *logrus.Entry
}

func NewManager(settings Settings) *Manager {
	if settings.SendBufferSize <= 0 {
		settings.SendBufferSize = 1
	}
	if settings.Path == "" {
		settings.Path = "/ws"
	}
	return &Manager{
		clients:  make(map[string]*Client),
		settings: settings,
		log:      logrus.WithField("component", "websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetLifecycleHandler(handler LifecycleHandler) {
	m.lifecycle = handler
}

// Accept takes ownership of an upgraded inbound connection.
func (m *Manager) Accept(conn *websocket.Conn) *Client {
	client := newClient(uuid.New().String(), conn, m, Inbound, conn.RemoteAddr().String())
	m.start(client)
	return client
}

// Dial opens an outbound connection to the peer at address ("host:port").
func (m *Manager) Dial(ctx context.Context, address string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.settings.DialTimeout}
	u := url.URL{Scheme: "ws", Host: address, Path: m.settings.Path}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	client := newClient(uuid.New().String(), conn, m, Outbound, address)
	m.start(client)
	return client, nil
}

// start registers the client and fires ConnectionEstablished before the read
// pump can dispatch anything.
func (m *Manager) start(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.id] = client
	m.clientsMutex.Unlock()

	client.log.WithField("direction", client.direction).Info("connection established")
	if m.lifecycle != nil {
		m.lifecycle.ConnectionEstablished(client)
	}

	go client.WritePump()
	go client.ReadPump()
}

func (m *Manager) unregister(client *Client, err error) {
	m.clientsMutex.Lock()
	_, ok := m.clients[client.id]
	delete(m.clients, client.id)
	m.clientsMutex.Unlock()

	if !ok {
		return
	}

	if err != nil {
		client.log.WithError(err).Info("connection errored")
		if m.lifecycle != nil {
			m.lifecycle.ConnectionErrored(client, err)
		}
		return
	}

	client.log.Info("connection stopped")
	if m.lifecycle != nil {
		m.lifecycle.ConnectionStopped(client)
	}
}

func (m *Manager) dispatch(client *Client, msg *Message) {
	if m.messageHandler == nil {
		return
	}
	if err := m.messageHandler.HandleWebSocketMessage(client, msg); err != nil {
		client.log.WithError(err).WithField("type", msg.Type).Warn("error handling message")
	}
}

func (m *Manager) Get(id string) (*Client, bool) {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

func (m *Manager) Count() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Clients returns every registered client other than exclude.
func (m *Manager) Clients(exclude *Client) []*Client {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		if c != exclude {
			clients = append(clients, c)
		}
	}
	return clients
}

func (m *Manager) CloseAll() error {
	var result error
	for _, c := range m.Clients(nil) {
		if err := c.Close(); err != nil && !errors.Is(err, ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", c.id, err))
		}
	}
	return result
}
