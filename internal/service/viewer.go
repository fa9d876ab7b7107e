package service

import (
	"sync"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Canvas is the rendering surface. It is driven only with snapshots.
type Canvas interface {
	Render(snapshot domain.Snapshot)
	Clear()
}

// Viewer holds the currently selected board and redraws it on change.
type Viewer struct {
	mu       sync.RWMutex
	selected domain.BoardID
	repo     repository.BoardRepository
	canvas   Canvas
}

func NewViewer(repo repository.BoardRepository, canvas Canvas) *Viewer {
	return &Viewer{repo: repo, canvas: canvas}
}

func (v *Viewer) Select(id domain.BoardID) {
	v.mu.Lock()
	v.selected = id
	v.mu.Unlock()
	v.Redraw()
}

func (v *Viewer) SelectedID() (domain.BoardID, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selected, !v.selected.IsZero()
}

// Selected returns the selected board, or ErrNoBoardSelected when nothing is
// selected or the selection has since been deleted.
func (v *Viewer) Selected() (*domain.Board, error) {
	id, ok := v.SelectedID()
	if !ok {
		return nil, ErrNoBoardSelected
	}
	board, err := v.repo.FindByID(id)
	if err != nil {
		return nil, ErrNoBoardSelected
	}
	return board, nil
}

// BoardChanged redraws if id is the selected board.
func (v *Viewer) BoardChanged(id domain.BoardID) {
	if selected, ok := v.SelectedID(); ok && selected == id {
		v.Redraw()
	}
}

// BoardRemoved moves the selection off a deleted board onto the first
// remaining board, if any.
func (v *Viewer) BoardRemoved(id domain.BoardID) {
	v.mu.Lock()
	if v.selected != id {
		v.mu.Unlock()
		return
	}
	v.selected = domain.BoardID{}
	if boards := v.repo.List(); len(boards) > 0 {
		v.selected = boards[0].ID()
	}
	v.mu.Unlock()
	v.Redraw()
}

func (v *Viewer) Redraw() {
	if v.canvas == nil {
		return
	}
	board, err := v.Selected()
	if err != nil {
		v.canvas.Clear()
		return
	}
	v.canvas.Render(board.Snapshot())
}

// LogCanvas renders by logging; it is the default when no drawing surface is
// attached.
type LogCanvas struct {
	log *logrus.Entry
}

func NewLogCanvas() *LogCanvas {
	return &LogCanvas{log: logrus.WithField("component", "canvas")}
}

func (c *LogCanvas) Render(snapshot domain.Snapshot) {
	c.log.WithFields(logrus.Fields{
		"board":   snapshot.ID.String(),
		"version": snapshot.Version,
		"paths":   len(snapshot.Paths),
	}).Debug("render")
}

func (c *LogCanvas) Clear() {
	c.log.Debug("clear")
}
