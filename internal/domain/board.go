package domain

import "sync"

type MutationKind string

const (
	MutationAddPath MutationKind = "add_path"
	MutationUndo    MutationKind = "undo"
	MutationClear   MutationKind = "clear"
)

// Mutation is a gated change to a board. Version is the version the board
// must be at for the mutation to be accepted.
type Mutation struct {
	Board   BoardID
	Kind    MutationKind
	Version int64
	Path    *Path
}

type Snapshot struct {
	ID      BoardID `json:"id"`
	Version int64   `json:"version"`
	Paths   []Path  `json:"paths"`
}

// Board is a versioned whiteboard. Every accepted mutation advances the
// version by exactly one; a mutation naming any other version is rejected
// and leaves the board untouched.
type Board struct {
	mu sync.Mutex
	// publishMu serializes ApplyThen so each accepted mutation is published
	// before the next one can be accepted.
	publishMu sync.Mutex

	id      BoardID
	version int64
	paths   []Path

	remote      bool
	shared      bool
	used        bool
	unreachable bool
}

func NewBoard(id BoardID, remote bool) *Board {
	return &Board{
		id:     id,
		remote: remote,
		paths:  []Path{},
	}
}

func (b *Board) ID() BoardID {
	return b.id
}

func (b *Board) Version() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

func (b *Board) AddPath(path Path, expectedVersion int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if expectedVersion != b.version {
		return false
	}
	b.paths = append(b.paths, path)
	b.version++
	return true
}

// Undo removes the last path. Undo on an empty board is still accepted and
// still advances the version.
func (b *Board) Undo(expectedVersion int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if expectedVersion != b.version {
		return false
	}
	if len(b.paths) > 0 {
		b.paths = b.paths[:len(b.paths)-1]
	}
	b.version++
	return true
}

func (b *Board) Clear(expectedVersion int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if expectedVersion != b.version {
		return false
	}
	b.paths = []Path{}
	b.version++
	return true
}

// Apply runs the gated operation named by m.Kind.
func (b *Board) Apply(m Mutation) bool {
	switch m.Kind {
	case MutationAddPath:
		if m.Path == nil {
			return false
		}
		return b.AddPath(*m.Path, m.Version)
	case MutationUndo:
		return b.Undo(m.Version)
	case MutationClear:
		return b.Clear(m.Version)
	}
	return false
}

// ApplyThen applies m and, if it was accepted, runs publish before any other
// ApplyThen on this board can apply its mutation. Subscribers fed from
// publish therefore see mutations in accepted order. publish may call other
// Board methods but must not call ApplyThen.
func (b *Board) ApplyThen(m Mutation, publish func()) bool {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	if !b.Apply(m) {
		return false
	}
	if publish != nil {
		publish()
	}
	return true
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths := make([]Path, len(b.paths))
	copy(paths, b.paths)
	return Snapshot{ID: b.id, Version: b.version, Paths: paths}
}

// ReplaceFromSnapshot installs the owner's full state on a shadow board.
// It bypasses the version gate.
func (b *Board) ReplaceFromSnapshot(version int64, paths []Path) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.paths = make([]Path, len(paths))
	copy(b.paths, paths)
	b.version = version
}

func (b *Board) IsRemote() bool {
	return b.remote
}

func (b *Board) IsShared() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shared
}

func (b *Board) SetShared(shared bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shared = shared
}

// MarkUsed sets the one-shot used flag and reports whether this call was the
// one that set it.
func (b *Board) MarkUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used {
		return false
	}
	b.used = true
	return true
}

func (b *Board) ResetUsed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = false
}

func (b *Board) IsUnreachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unreachable
}

func (b *Board) SetUnreachable(unreachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unreachable = unreachable
}

type BoardSummary struct {
	ID        string `json:"id"`
	Version   int64  `json:"version"`
	PathCount int    `json:"path_count"`
	Remote    bool   `json:"remote"`
	Shared    bool   `json:"shared"`
}

func (b *Board) Summary() BoardSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BoardSummary{
		ID:        b.id.String(),
		Version:   b.version,
		PathCount: len(b.paths),
		Remote:    b.remote,
		Shared:    b.shared,
	}
}
