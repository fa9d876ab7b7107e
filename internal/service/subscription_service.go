package service

import (
	"sync"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/websocket"

	"github.com/sirupsen/logrus"
)

// SubscriptionService tracks which connections listen to which boards.
type SubscriptionService struct {
	mu          sync.RWMutex
	subscribers map[domain.BoardID]map[string]Conn
	log         *logrus.Entry
}

func NewSubscriptionService() *SubscriptionService {
	return &SubscriptionService{
		subscribers: make(map[domain.BoardID]map[string]Conn),
		log:         logrus.WithField("component", "subscriptions"),
	}
}

// Subscribe is idempotent and reports whether conn was newly added.
func (s *SubscriptionService) Subscribe(id domain.BoardID, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscribers[id]
	if !ok {
		subs = make(map[string]Conn)
		s.subscribers[id] = subs
	}
	if _, exists := subs[conn.ID()]; exists {
		return false
	}
	subs[conn.ID()] = conn
	return true
}

func (s *SubscriptionService) Unsubscribe(id domain.BoardID, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscribers[id]
	if !ok {
		return false
	}
	if _, exists := subs[conn.ID()]; !exists {
		return false
	}
	delete(subs, conn.ID())
	if len(subs) == 0 {
		delete(s.subscribers, id)
	}
	return true
}

// Purge removes conn from every board and returns the boards it left.
func (s *SubscriptionService) Purge(conn Conn) []domain.BoardID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var left []domain.BoardID
	for id, subs := range s.subscribers {
		if _, exists := subs[conn.ID()]; !exists {
			continue
		}
		delete(subs, conn.ID())
		if len(subs) == 0 {
			delete(s.subscribers, id)
		}
		left = append(left, id)
	}
	return left
}

// Drop forgets a board entirely and returns its former subscribers.
func (s *SubscriptionService) Drop(id domain.BoardID) []Conn {
	s.mu.Lock()
	subs := s.subscribers[id]
	delete(s.subscribers, id)
	s.mu.Unlock()

	conns := make([]Conn, 0, len(subs))
	for _, c := range subs {
		conns = append(conns, c)
	}
	return conns
}

func (s *SubscriptionService) Subscribers(id domain.BoardID) []Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subscribers[id]
	conns := make([]Conn, 0, len(subs))
	for _, c := range subs {
		conns = append(conns, c)
	}
	return conns
}

func (s *SubscriptionService) Count(id domain.BoardID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[id])
}

// Broadcast sends to every subscriber of id except exclude. Sends happen
// outside the lock; a failing subscriber does not stop the others.
func (s *SubscriptionService) Broadcast(id domain.BoardID, msgType websocket.MessageType, arg string, exclude Conn) int {
	sent := 0
	for _, c := range s.Subscribers(id) {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		if err := c.Emit(msgType, arg); err != nil {
			s.log.WithFields(logrus.Fields{"board": id.String(), "conn": c.ID()}).WithError(err).Warn("broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}
