package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/protocol"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/websocket"

	"github.com/sirupsen/logrus"
)

// SharingService runs the share/unshare handshake with the directory and
// connects shadow boards to their owners.
type SharingService struct {
	repo        repository.BoardRepository
	links       *UpstreamLinks
	viewer      *Viewer
	dial        DialFunc
	peerAddress string
	log         *logrus.Entry

	mu        sync.RWMutex
	directory Conn
}

func NewSharingService(
	repo repository.BoardRepository,
	links *UpstreamLinks,
	viewer *Viewer,
	dial DialFunc,
	peerAddress string,
) *SharingService {
	return &SharingService{
		repo:        repo,
		links:       links,
		viewer:      viewer,
		dial:        dial,
		peerAddress: peerAddress,
		log:         logrus.WithField("component", "sharing"),
	}
}

// SetDirectory records the directory connection and re-announces every
// board already marked shared.
func (s *SharingService) SetDirectory(conn Conn) {
	s.mu.Lock()
	s.directory = conn
	s.mu.Unlock()

	for _, board := range s.repo.List() {
		if !board.IsRemote() && board.IsShared() {
			if err := conn.Emit(websocket.TypeShareBoard, board.ID().String()); err != nil {
				s.log.WithError(err).WithField("board", board.ID().String()).Warn("re-announce failed")
			}
		}
	}
}

func (s *SharingService) Directory() (Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.directory == nil {
		return nil, ErrDirectoryUnavailable
	}
	return s.directory, nil
}

// SetShared flips the shared flag of an owned board and tells the directory.
// The flag is kept even when the directory is unreachable; it is announced
// again once a directory connection is set.
func (s *SharingService) SetShared(board *domain.Board, shared bool) error {
	if board.IsRemote() {
		return fmt.Errorf("%w: %s", ErrNotOwner, board.ID())
	}
	board.SetShared(shared)

	msgType := websocket.TypeShareBoard
	if !shared {
		msgType = websocket.TypeUnshareBoard
	}
	return s.announce(msgType, board.ID())
}

func (s *SharingService) announce(msgType websocket.MessageType, id domain.BoardID) error {
	dir, err := s.Directory()
	if err != nil {
		return err
	}
	if err := dir.Emit(msgType, id.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	s.log.WithFields(logrus.Fields{"board": id.String(), "type": msgType}).Info("announced to directory")
	return nil
}

// HandleSharing creates a shadow board for a board another peer shared.
func (s *SharingService) HandleSharing(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}
	if id.PeerAddress() == s.peerAddress {
		return nil
	}

	if err := s.repo.Create(domain.NewBoard(id, true)); err != nil {
		if errors.Is(err, repository.ErrBoardExists) {
			return nil
		}
		return err
	}
	s.log.WithField("board", id.String()).Info("discovered shared board")
	return nil
}

// HandleUnsharing deletes the shadow of a board its owner stopped sharing
// and closes the connection that served it.
func (s *SharingService) HandleUnsharing(conn Conn, arg string) error {
	id, err := protocol.DecodeIdentity(arg)
	if err != nil {
		return err
	}

	board, err := s.repo.FindByID(id)
	if err != nil || !board.IsRemote() {
		return nil
	}
	if _, err := s.repo.Delete(id); err != nil && !errors.Is(err, repository.ErrBoardNotFound) {
		return err
	}
	if link, ok := s.links.Remove(id); ok {
		link.Close()
	}
	s.log.WithField("board", id.String()).Info("shared board withdrawn")
	s.viewer.BoardRemoved(id)
	return nil
}

// Activate connects a shadow board to its owner the first time it is
// selected: dial, then listen, then request the full state. Later calls are
// no-ops until the link is lost.
func (s *SharingService) Activate(ctx context.Context, board *domain.Board) error {
	if !board.IsRemote() || !board.MarkUsed() {
		return nil
	}
	id := board.ID()

	conn, err := s.dial(ctx, id.PeerAddress())
	if err != nil {
		board.ResetUsed()
		board.SetUnreachable(true)
		return fmt.Errorf("%w: %v", ErrBoardUnreachable, err)
	}

	if current, err := s.repo.FindByID(id); err != nil || current != board {
		// withdrawn, or withdrawn and shared again, while dialing
		conn.Close()
		return nil
	}

	if prev, ok := s.links.Set(id, conn); ok && prev.ID() != conn.ID() {
		prev.Close()
	}
	board.SetUnreachable(false)

	if err := errors.Join(
		conn.Emit(websocket.TypeListenBoard, id.String()),
		conn.Emit(websocket.TypeGetBoardData, id.String()),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrBoardUnreachable, err)
	}
	s.log.WithFields(logrus.Fields{"board": id.String(), "conn": conn.ID()}).Info("subscribed to owner")
	return nil
}

// Release unlistens a shadow board and closes its link.
func (s *SharingService) Release(board *domain.Board) error {
	link, ok := s.links.Remove(board.ID())
	if !ok {
		return nil
	}
	err := link.Emit(websocket.TypeUnlistenBoard, board.ID().String())
	link.Close()
	return err
}

// ConnectionLost marks every shadow served by conn unreachable so later
// local mutations fail fast, and forgets conn if it was the directory.
func (s *SharingService) ConnectionLost(conn Conn) []domain.BoardID {
	s.mu.Lock()
	if s.directory != nil && s.directory.ID() == conn.ID() {
		s.directory = nil
		s.log.Warn("directory connection lost")
	}
	s.mu.Unlock()

	ids := s.links.RemoveConn(conn)
	for _, id := range ids {
		board, err := s.repo.FindByID(id)
		if err != nil {
			continue
		}
		board.SetUnreachable(true)
		board.ResetUsed()
		s.log.WithField("board", id.String()).Warn("owner unreachable")
	}
	return ids
}
