package directory

import (
	"context"
	"sync"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/protocol"
	"whiteboard-sync/internal/websocket"

	"github.com/sirupsen/logrus"
)

// Conn is a peer connection held by the directory.
type Conn interface {
	ID() string
	Emit(msgType websocket.MessageType, arg string) error
}

// Publisher propagates local share changes to other directory replicas.
type Publisher interface {
	Publish(ctx context.Context, msgType websocket.MessageType, id domain.BoardID) error
}

type Service struct {
	registry *Registry
	log      *logrus.Entry

	mu    sync.RWMutex
	peers map[string]Conn
	relay Publisher
}

func NewService(registry *Registry) *Service {
	return &Service{
		registry: registry,
		peers:    make(map[string]Conn),
		log:      logrus.WithField("component", "directory"),
	}
}

func (s *Service) SetRelay(relay Publisher) {
	s.mu.Lock()
	s.relay = relay
	s.mu.Unlock()
}

// Join registers a peer and sends it every board currently shared.
func (s *Service) Join(conn Conn) {
	s.mu.Lock()
	s.peers[conn.ID()] = conn
	s.mu.Unlock()

	ids := s.registry.List()
	for _, id := range ids {
		if err := conn.Emit(websocket.TypeSharingBoard, id.String()); err != nil {
			s.log.WithError(err).WithField("conn", conn.ID()).Warn("initial share list failed")
			return
		}
	}
	s.log.WithFields(logrus.Fields{"conn": conn.ID(), "shared": len(ids)}).Info("peer joined")
}

// Leave forgets a peer and withdraws every board it shared.
func (s *Service) Leave(conn Conn) {
	s.mu.Lock()
	delete(s.peers, conn.ID())
	s.mu.Unlock()

	for _, id := range s.registry.ReleaseOwner(conn.ID()) {
		s.announce(websocket.TypeUnsharingBoard, id, conn.ID())
		s.publish(websocket.TypeUnsharingBoard, id)
	}
	s.log.WithField("conn", conn.ID()).Info("peer left")
}

func (s *Service) Handle(conn Conn, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeShareBoard:
		id, err := protocol.DecodeIdentity(msg.Arg)
		if err != nil {
			return err
		}
		if !s.registry.Share(id, conn.ID()) {
			s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Debug("already shared")
			return nil
		}
		s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Info("board shared")
		s.announce(websocket.TypeSharingBoard, id, conn.ID())
		s.publish(websocket.TypeSharingBoard, id)

	case websocket.TypeUnshareBoard:
		id, err := protocol.DecodeIdentity(msg.Arg)
		if err != nil {
			return err
		}
		if !s.registry.Unshare(id, conn.ID()) {
			s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Debug("unshare ignored")
			return nil
		}
		s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Info("board unshared")
		s.announce(websocket.TypeUnsharingBoard, id, conn.ID())
		s.publish(websocket.TypeUnsharingBoard, id)

	default:
		s.log.WithFields(logrus.Fields{"conn": conn.ID(), "type": msg.Type}).Warn("unexpected message type")
	}
	return nil
}

// ApplyRemote applies a share change relayed from the replica origin.
func (s *Service) ApplyRemote(origin string, msgType websocket.MessageType, id domain.BoardID) {
	owner := "relay:" + origin
	switch msgType {
	case websocket.TypeSharingBoard:
		if !s.registry.Share(id, owner) {
			return
		}
	case websocket.TypeUnsharingBoard:
		if !s.registry.Unshare(id, owner) {
			return
		}
	default:
		return
	}
	s.log.WithFields(logrus.Fields{"board": id.String(), "origin": origin, "type": msgType}).Info("relayed share change")
	s.announce(msgType, id, "")
}

func (s *Service) Peers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Service) announce(msgType websocket.MessageType, id domain.BoardID, exclude string) {
	s.mu.RLock()
	targets := make([]Conn, 0, len(s.peers))
	for cid, c := range s.peers {
		if cid != exclude {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.Emit(msgType, id.String()); err != nil {
			s.log.WithError(err).WithField("conn", c.ID()).Warn("announce failed")
		}
	}
}

func (s *Service) publish(msgType websocket.MessageType, id domain.BoardID) {
	s.mu.RLock()
	relay := s.relay
	s.mu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Publish(context.Background(), msgType, id); err != nil {
		s.log.WithError(err).WithField("board", id.String()).Warn("relay publish failed")
	}
}
