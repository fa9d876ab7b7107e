package service

import (
	"sync"

	"whiteboard-sync/internal/domain"
)

// UpstreamLinks maps each shadow board to the connection opened to its
// owner. A connection serves exactly one shadow board.
type UpstreamLinks struct {
	mu    sync.RWMutex
	links map[domain.BoardID]Conn
}

func NewUpstreamLinks() *UpstreamLinks {
	return &UpstreamLinks{links: make(map[domain.BoardID]Conn)}
}

// Set installs conn as the link of id and returns the link it replaced, if
// any.
func (l *UpstreamLinks) Set(id domain.BoardID, conn Conn) (Conn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.links[id]
	l.links[id] = conn
	return prev, ok
}

func (l *UpstreamLinks) Get(id domain.BoardID) (Conn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.links[id]
	return c, ok
}

// IsLink reports whether conn is the upstream link of id.
func (l *UpstreamLinks) IsLink(id domain.BoardID, conn Conn) bool {
	c, ok := l.Get(id)
	return ok && c.ID() == conn.ID()
}

func (l *UpstreamLinks) Remove(id domain.BoardID) (Conn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.links[id]
	delete(l.links, id)
	return c, ok
}

func (l *UpstreamLinks) RemoveConn(conn Conn) []domain.BoardID {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []domain.BoardID
	for id, c := range l.links {
		if c.ID() == conn.ID() {
			delete(l.links, id)
			ids = append(ids, id)
		}
	}
	return ids
}
