package repository

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"whiteboard-sync/internal/domain"
)

var (
	ErrBoardNotFound = errors.New("board not found")
	ErrBoardExists   = errors.New("board already exists")
)

// BoardRepository is the local registry of boards keyed by identity. It is
// shared by every message handler and must be safe for concurrent use.
type BoardRepository interface {
	Create(board *domain.Board) error
	FindByID(id domain.BoardID) (*domain.Board, error)
	List() []*domain.Board
	Delete(id domain.BoardID) (*domain.Board, error)
}

type boardRepository struct {
	mu     sync.RWMutex
	boards map[domain.BoardID]*domain.Board
}

func NewBoardRepository() BoardRepository {
	return &boardRepository{
		boards: make(map[domain.BoardID]*domain.Board),
	}
}

func (r *boardRepository) Create(board *domain.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.boards[board.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrBoardExists, board.ID())
	}
	r.boards[board.ID()] = board
	return nil
}

func (r *boardRepository) FindByID(id domain.BoardID) (*domain.Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	board, exists := r.boards[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}
	return board, nil
}

// List returns the boards sorted by identity.
func (r *boardRepository) List() []*domain.Board {
	r.mu.RLock()
	boards := make([]*domain.Board, 0, len(r.boards))
	for _, b := range r.boards {
		boards = append(boards, b)
	}
	r.mu.RUnlock()

	sort.Slice(boards, func(i, j int) bool {
		return boards[i].ID().String() < boards[j].ID().String()
	})
	return boards
}

func (r *boardRepository) Delete(id domain.BoardID) (*domain.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	board, exists := r.boards[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}
	delete(r.boards, id)
	return board, nil
}
