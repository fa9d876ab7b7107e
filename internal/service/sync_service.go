package service

import (
	"errors"
	"fmt"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/protocol"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/websocket"

	"github.com/sirupsen/logrus"
)

var updateTypes = map[domain.MutationKind]websocket.MessageType{
	domain.MutationAddPath: websocket.TypeBoardPathUpdate,
	domain.MutationUndo:    websocket.TypeBoardUndoUpdate,
	domain.MutationClear:   websocket.TypeBoardClearUpdate,
}

func UpdateType(kind domain.MutationKind) websocket.MessageType {
	return updateTypes[kind]
}

// SyncService applies the version gate to board messages and fans accepted
// updates out to subscribers.
type SyncService struct {
	repo        repository.BoardRepository
	subs        *SubscriptionService
	links       *UpstreamLinks
	viewer      *Viewer
	peerAddress string
	log         *logrus.Entry
}

func NewSyncService(
	repo repository.BoardRepository,
	subs *SubscriptionService,
	links *UpstreamLinks,
	viewer *Viewer,
	peerAddress string,
) *SyncService {
	return &SyncService{
		repo:        repo,
		subs:        subs,
		links:       links,
		viewer:      viewer,
		peerAddress: peerAddress,
		log:         logrus.WithField("component", "sync"),
	}
}

// PublishLocal sends a locally accepted mutation onward. m.Version is the
// version the board was at before the mutation. Shadow boards forward to the
// owner; shared owned boards broadcast to subscribers.
func (s *SyncService) PublishLocal(board *domain.Board, m domain.Mutation) error {
	arg := protocol.EncodeMutation(m)
	msgType := UpdateType(m.Kind)

	if board.IsRemote() {
		conn, ok := s.links.Get(board.ID())
		if !ok {
			return fmt.Errorf("%w: %s", ErrBoardUnreachable, board.ID())
		}
		if err := conn.Emit(msgType, arg); err != nil {
			return fmt.Errorf("%w: %v", ErrBoardUnreachable, err)
		}
		s.log.WithFields(logrus.Fields{"board": board.ID().String(), "version": m.Version, "kind": m.Kind}).Debug("forwarded to owner")
		return nil
	}

	if board.IsShared() {
		n := s.subs.Broadcast(board.ID(), msgType, arg, nil)
		s.log.WithFields(logrus.Fields{"board": board.ID().String(), "version": m.Version, "kind": m.Kind, "subscribers": n}).Debug("broadcast local update")
	}
	return nil
}

// ownedBoard resolves a board this peer owns. Identities addressed to
// another peer are never owned here.
func (s *SyncService) ownedBoard(id domain.BoardID) (*domain.Board, bool) {
	if id.PeerAddress() != s.peerAddress {
		return nil, false
	}
	board, err := s.repo.FindByID(id)
	if err != nil || board.IsRemote() {
		return nil, false
	}
	return board, true
}

// shadowBoard resolves a shadow board whose upstream link is conn.
func (s *SyncService) shadowBoard(id domain.BoardID, conn Conn) (*domain.Board, bool) {
	board, err := s.repo.FindByID(id)
	if err != nil || !board.IsRemote() {
		return nil, false
	}
	if !s.links.IsLink(id, conn) {
		return nil, false
	}
	return board, true
}

func (s *SyncService) dropped(conn Conn, id domain.BoardID, reason string) {
	s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Debugf("dropped message: %s", reason)
}

func (s *SyncService) HandleListen(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}
	if _, ok := s.ownedBoard(id); !ok {
		s.dropped(conn, id, "listen for unknown board")
		return nil
	}
	if s.subs.Subscribe(id, conn) {
		s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Info("subscriber added")
	}
	return nil
}

func (s *SyncService) HandleUnlisten(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}
	if s.subs.Unsubscribe(id, conn) {
		s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Info("subscriber removed")
	}
	return nil
}

func (s *SyncService) HandleGetBoardData(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}
	board, ok := s.ownedBoard(id)
	if !ok {
		s.dropped(conn, id, "board data requested for unknown board")
		return nil
	}
	return conn.Emit(websocket.TypeBoardData, protocol.EncodeSnapshot(board.Snapshot()))
}

// HandleBoardData installs the owner's full state on a shadow board.
func (s *SyncService) HandleBoardData(conn Conn, arg string) error {
	snap, err := protocol.DecodeSnapshot(arg)
	if err != nil {
		return err
	}
	board, ok := s.shadowBoard(snap.ID, conn)
	if !ok {
		s.dropped(conn, snap.ID, "board data for unknown shadow")
		return nil
	}

	board.ReplaceFromSnapshot(snap.Version, snap.Paths)
	s.log.WithFields(logrus.Fields{"board": snap.ID.String(), "version": snap.Version, "paths": len(snap.Paths)}).Info("shadow board synchronized")
	s.viewer.BoardChanged(snap.ID)
	return nil
}

// HandleUpdate applies an add-path, undo or clear message. On the owner an
// accepted update is re-broadcast to every other subscriber; a rejected one
// is answered with the current state so the sender can resynchronize.
func (s *SyncService) HandleUpdate(conn Conn, kind domain.MutationKind, arg string) error {
	m, err := protocol.DecodeMutation(kind, arg)
	if err != nil {
		return err
	}

	entry := s.log.WithFields(logrus.Fields{"board": m.Board.String(), "conn": conn.ID(), "version": m.Version, "kind": kind})

	if board, ok := s.shadowBoard(m.Board, conn); ok {
		if !board.Apply(m) {
			entry.WithField("current", board.Version()).Debug("shadow rejected stale update")
			return nil
		}
		entry.Debug("shadow applied update")
		s.viewer.BoardChanged(m.Board)
		return nil
	}

	board, ok := s.ownedBoard(m.Board)
	if !ok {
		s.dropped(conn, m.Board, "update for unknown board")
		return nil
	}

	var n int
	accepted := board.ApplyThen(m, func() {
		n = s.subs.Broadcast(m.Board, UpdateType(kind), arg, conn)
	})
	if !accepted {
		snap := board.Snapshot()
		entry.WithField("current", snap.Version).Info("rejected stale update")
		diagnostic := fmt.Sprintf("stale version %d for %s, current version is %d", m.Version, m.Board, snap.Version)
		return errors.Join(
			conn.Emit(websocket.TypeBoardError, diagnostic),
			conn.Emit(websocket.TypeBoardData, protocol.EncodeSnapshot(snap)),
		)
	}

	entry.WithField("subscribers", n).Debug("accepted update")
	s.viewer.BoardChanged(m.Board)
	return nil
}

// HandleBoardDeleted removes a shadow board whose owner deleted it.
func (s *SyncService) HandleBoardDeleted(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}
	if _, ok := s.shadowBoard(id, conn); !ok {
		s.dropped(conn, id, "delete for unknown shadow")
		return nil
	}

	if _, err := s.repo.Delete(id); err != nil && !errors.Is(err, repository.ErrBoardNotFound) {
		return err
	}
	if link, ok := s.links.Remove(id); ok {
		link.Close()
	}
	s.log.WithField("board", id.String()).Info("owner deleted board")
	s.viewer.BoardRemoved(id)
	return nil
}

func (s *SyncService) HandleBoardError(conn Conn, arg string) error {
	s.log.WithField("conn", conn.ID()).Warnf("peer reported error: %s", arg)
	return nil
}
