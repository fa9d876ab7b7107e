package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/repository"
	"whiteboard-sync/internal/websocket"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// BoardService carries out the local user's actions on boards.
type BoardService struct {
	repo    repository.BoardRepository
	subs    *SubscriptionService
	links   *UpstreamLinks
	sync    *SyncService
	sharing *SharingService
	viewer  *Viewer
	host    string
	port    int
	log     *logrus.Entry
}

func NewBoardService(
	repo repository.BoardRepository,
	subs *SubscriptionService,
	links *UpstreamLinks,
	sync *SyncService,
	sharing *SharingService,
	viewer *Viewer,
	host string,
	port int,
) *BoardService {
	return &BoardService{
		repo:    repo,
		subs:    subs,
		links:   links,
		sync:    sync,
		sharing: sharing,
		viewer:  viewer,
		host:    host,
		port:    port,
		log:     logrus.WithField("component", "boards"),
	}
}

// CreateBoard makes a new unshared local board and selects it.
func (s *BoardService) CreateBoard() (*domain.Board, error) {
	id := domain.NewBoardID(s.host, s.port, "board"+ulid.Make().String())
	board := domain.NewBoard(id, false)
	if err := s.repo.Create(board); err != nil {
		return nil, err
	}
	s.viewer.Select(id)
	s.log.WithField("board", id.String()).Info("created board")
	return board, nil
}

func (s *BoardService) List() []domain.BoardSummary {
	boards := s.repo.List()
	summaries := make([]domain.BoardSummary, 0, len(boards))
	for _, b := range boards {
		summaries = append(summaries, b.Summary())
	}
	return summaries
}

// DeleteBoard removes a board. A shared owned board is unshared and its
// subscribers are told it is gone; a shadow board is unlistened upstream.
func (s *BoardService) DeleteBoard(id domain.BoardID) error {
	board, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	var result error
	if board.IsRemote() {
		if err := s.sharing.Release(board); err != nil {
			result = multierror.Append(result, err)
		}
	} else {
		if board.IsShared() {
			if err := s.sharing.SetShared(board, false); err != nil && !errors.Is(err, ErrDirectoryUnavailable) {
				result = multierror.Append(result, err)
			}
			for _, c := range s.subs.Subscribers(id) {
				if err := c.Emit(websocket.TypeBoardDeleted, id.String()); err != nil {
					s.log.WithError(err).WithField("conn", c.ID()).Warn("delete notice failed")
				}
			}
		}
		s.subs.Drop(id)
	}

	if _, err := s.repo.Delete(id); err != nil && !errors.Is(err, repository.ErrBoardNotFound) {
		result = multierror.Append(result, err)
	}
	s.viewer.BoardRemoved(id)
	s.log.WithField("board", id.String()).Info("deleted board")
	return result
}

// SelectBoard makes id the viewed board. Selecting a shadow board for the
// first time subscribes to its owner.
func (s *BoardService) SelectBoard(ctx context.Context, id domain.BoardID) error {
	board, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	s.viewer.Select(id)
	return s.sharing.Activate(ctx, board)
}

func (s *BoardService) Selected() (domain.Snapshot, error) {
	board, err := s.viewer.Selected()
	if err != nil {
		return domain.Snapshot{}, err
	}
	return board.Snapshot(), nil
}

// DrawPath commits a path drawn on the selected board. A false result means
// another peer changed the board first; the view has been redrawn without
// the path.
func (s *BoardService) DrawPath(path domain.Path) (bool, error) {
	return s.mutateSelected(domain.MutationAddPath, &path)
}

func (s *BoardService) Undo() (bool, error) {
	return s.mutateSelected(domain.MutationUndo, nil)
}

func (s *BoardService) Clear() (bool, error) {
	return s.mutateSelected(domain.MutationClear, nil)
}

func (s *BoardService) mutateSelected(kind domain.MutationKind, path *domain.Path) (bool, error) {
	board, err := s.viewer.Selected()
	if err != nil {
		return false, err
	}

	if board.IsRemote() {
		if _, ok := s.links.Get(board.ID()); !ok || board.IsUnreachable() {
			s.viewer.Redraw()
			return false, fmt.Errorf("%w: %s", ErrBoardUnreachable, board.ID())
		}
	}

	m := domain.Mutation{Board: board.ID(), Kind: kind, Version: board.Version(), Path: path}
	var publishErr error
	accepted := board.ApplyThen(m, func() {
		publishErr = s.sync.PublishLocal(board, m)
	})
	if !accepted {
		s.log.WithFields(logrus.Fields{"board": m.Board.String(), "kind": kind}).Debug("local mutation lost the race")
		s.viewer.Redraw()
		return false, nil
	}

	s.viewer.Redraw()
	return true, publishErr
}

func (s *BoardService) SetShared(shared bool) error {
	board, err := s.viewer.Selected()
	if err != nil {
		return err
	}
	return s.sharing.SetShared(board, shared)
}

// Shutdown deletes every board so the directory and remote peers are told.
func (s *BoardService) Shutdown() error {
	var result error
	for _, b := range s.repo.List() {
		if err := s.DeleteBoard(b.ID()); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", b.ID(), err))
		}
	}
	return result
}

// ParseID accepts a full "host:port:boardid" identity or a bare local board
// id.
func (s *BoardService) ParseID(raw string) (domain.BoardID, error) {
	if !strings.Contains(raw, ":") {
		if raw == "" {
			return domain.BoardID{}, domain.ErrMalformedIdentity
		}
		return domain.NewBoardID(s.host, s.port, raw), nil
	}
	return domain.ParseBoardID(raw)
}
