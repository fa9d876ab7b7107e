package service

import (
	"context"
	"errors"

	"whiteboard-sync/internal/websocket"
)

var (
	ErrNoBoardSelected      = errors.New("no board selected")
	ErrBoardUnreachable     = errors.New("board owner unreachable")
	ErrNotOwner             = errors.New("board is not owned by this peer")
	ErrDirectoryUnavailable = errors.New("directory service unavailable")
)

// Conn is a peer connection as seen by the board services. Emit must not
// block.
type Conn interface {
	ID() string
	Emit(msgType websocket.MessageType, arg string) error
	Close() error
}

// DialFunc opens a connection to the peer at "host:port".
type DialFunc func(ctx context.Context, address string) (Conn, error)
