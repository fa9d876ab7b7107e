package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/websocket"
)

const (
	testHost = "10.0.0.1"
	testPort = 9000
)

var testAddress = domain.PeerAddress(testHost, testPort)

type sentMessage struct {
	Type websocket.MessageType
	Arg  string
}

type fakeConn struct {
	id string

	mu      sync.Mutex
	sent    []sentMessage
	closed  bool
	emitErr error
	// delay slows every Emit, like a subscriber on a congested link.
	delay time.Duration
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(msgType websocket.MessageType, arg string) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	if c.closed {
		return websocket.ErrClosed
	}
	c.sent = append(c.sent, sentMessage{Type: msgType, Arg: arg})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) SentTypes() []websocket.MessageType {
	var types []websocket.MessageType
	for _, m := range c.Sent() {
		types = append(types, m.Type)
	}
	return types
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeCanvas struct {
	mu      sync.Mutex
	renders []domain.Snapshot
	clears  int
}

func (c *fakeCanvas) Render(s domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renders = append(c.renders, s)
}

func (c *fakeCanvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *fakeCanvas) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.renders)
}

func (c *fakeCanvas) Last() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.renders) == 0 {
		return domain.Snapshot{}
	}
	return c.renders[len(c.renders)-1]
}

// fakeDialer hands out one fakeConn per address and counts dials.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	all   []*fakeConn
	dials int
	err   error
	// onDial runs at the start of every dial, before the connection exists.
	onDial func(address string)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string]*fakeConn)}
}

func (d *fakeDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d.mu.Lock()
	hook := d.onDial
	d.mu.Unlock()
	if hook != nil {
		hook(address)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn(fmt.Sprintf("upstream-%s-%d", address, d.dials))
	d.conns[address] = c
	d.all = append(d.all, c)
	return c, nil
}

// All returns every connection handed out, oldest first.
func (d *fakeDialer) All() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.all...)
}

func (d *fakeDialer) Conn(address string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[address]
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

var errDialRefused = errors.New("connection refused")

// testPeer wires the services the way cmd/peer does, over fakes.
type testPeer struct {
	repo     repository.BoardRepository
	subs     *SubscriptionService
	links    *UpstreamLinks
	viewer   *Viewer
	canvas   *fakeCanvas
	dialer   *fakeDialer
	sync     *SyncService
	sharing  *SharingService
	sessions *SessionService
	boards   *BoardService
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()

	p := &testPeer{
		repo:   repository.NewBoardRepository(),
		subs:   NewSubscriptionService(),
		links:  NewUpstreamLinks(),
		canvas: &fakeCanvas{},
		dialer: newFakeDialer(),
	}
	p.viewer = NewViewer(p.repo, p.canvas)
	p.sync = NewSyncService(p.repo, p.subs, p.links, p.viewer, testAddress)
	p.sharing = NewSharingService(p.repo, p.links, p.viewer, p.dialer.Dial, testAddress)
	p.sessions = NewSessionService(p.subs, p.sharing)
	p.boards = NewBoardService(p.repo, p.subs, p.links, p.sync, p.sharing, p.viewer, testHost, testPort)
	return p
}

func (p *testPeer) ownBoard(t *testing.T, name string, version int64, paths ...domain.Path) *domain.Board {
	t.Helper()
	b := domain.NewBoard(domain.NewBoardID(testHost, testPort, name), false)
	b.ReplaceFromSnapshot(version, paths)
	if err := p.repo.Create(b); err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

func line(color string, x, y int) domain.Path {
	return domain.Path{Color: color, Points: []domain.Point{{X: x, Y: y}}}
}
