package service

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionService reacts to connection lifecycle events. Messages are only
// accepted from connections it has seen established and not yet torn down.
type SessionService struct {
	subs    *SubscriptionService
	sharing *SharingService
	log     *logrus.Entry

	mu      sync.RWMutex
	sources map[string]Conn
}

func NewSessionService(subs *SubscriptionService, sharing *SharingService) *SessionService {
	return &SessionService{
		subs:    subs,
		sharing: sharing,
		sources: make(map[string]Conn),
		log:     logrus.WithField("component", "session"),
	}
}

func (s *SessionService) Established(conn Conn, inbound bool) {
	s.mu.Lock()
	s.sources[conn.ID()] = conn
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"conn": conn.ID(), "inbound": inbound}).Info("peer connected")
}

func (s *SessionService) Stopped(conn Conn) {
	s.teardown(conn)
	s.log.WithField("conn", conn.ID()).Info("peer disconnected")
}

func (s *SessionService) Errored(conn Conn, err error) {
	s.teardown(conn)
	s.log.WithField("conn", conn.ID()).WithError(err).Warn("peer connection failed")
}

func (s *SessionService) teardown(conn Conn) {
	s.mu.Lock()
	delete(s.sources, conn.ID())
	s.mu.Unlock()

	if left := s.subs.Purge(conn); len(left) > 0 {
		s.log.WithField("conn", conn.ID()).Infof("removed from %d subscriber sets", len(left))
	}
	s.sharing.ConnectionLost(conn)
}

func (s *SessionService) Accepts(conn Conn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[conn.ID()]
	return ok
}

func (s *SessionService) Sources() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}
