package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var remoteID = domain.NewBoardID("10.0.0.2", 9001, "remote1")

func TestSharingService_HandleSharingCreatesShadow(t *testing.T) {
	p := newTestPeer(t)
	dir := newFakeConn("directory")

	require.NoError(t, p.sharing.HandleSharing(dir, remoteID.String()))
	board, err := p.repo.FindByID(remoteID)
	require.NoError(t, err)
	assert.True(t, board.IsRemote())

	// repeated notices are ignored
	require.NoError(t, p.sharing.HandleSharing(dir, remoteID.String()))
	assert.Len(t, p.repo.List(), 1)

	own := domain.NewBoardID(testHost, testPort, "mine")
	require.NoError(t, p.sharing.HandleSharing(dir, own.String()))
	_, err = p.repo.FindByID(own)
	assert.Error(t, err)
}

func TestSharingService_ActivateSubscribesOnce(t *testing.T) {
	p := newTestPeer(t)
	require.NoError(t, p.sharing.HandleSharing(newFakeConn("directory"), remoteID.String()))
	board, _ := p.repo.FindByID(remoteID)

	require.NoError(t, p.sharing.Activate(context.Background(), board))
	require.NoError(t, p.sharing.Activate(context.Background(), board))

	assert.Equal(t, 1, p.dialer.Dials())
	upstream := p.dialer.Conn(remoteID.PeerAddress())
	require.NotNil(t, upstream)
	assert.Equal(t, []sentMessage{
		{websocket.TypeListenBoard, remoteID.String()},
		{websocket.TypeGetBoardData, remoteID.String()},
	}, upstream.Sent())
	assert.True(t, p.links.IsLink(remoteID, upstream))
}

func TestSharingService_ActivateDialFailure(t *testing.T) {
	p := newTestPeer(t)
	p.sharing.HandleSharing(newFakeConn("directory"), remoteID.String())
	board, _ := p.repo.FindByID(remoteID)
	p.dialer.err = errDialRefused

	err := p.sharing.Activate(context.Background(), board)
	assert.True(t, errors.Is(err, ErrBoardUnreachable))
	assert.True(t, board.IsUnreachable())

	p.dialer.err = nil
	require.NoError(t, p.sharing.Activate(context.Background(), board))
	assert.False(t, board.IsUnreachable())
	assert.Equal(t, 2, p.dialer.Dials())
}

func TestSharingService_ActivateIgnoresOwnedBoards(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 0)

	require.NoError(t, p.sharing.Activate(context.Background(), board))
	assert.Equal(t, 0, p.dialer.Dials())
}

func TestSharingService_SetShared(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 0)

	err := p.sharing.SetShared(board, true)
	assert.True(t, errors.Is(err, ErrDirectoryUnavailable))
	assert.True(t, board.IsShared())

	dir := newFakeConn("directory")
	p.sharing.SetDirectory(dir)
	assert.Equal(t, []sentMessage{{websocket.TypeShareBoard, board.ID().String()}}, dir.Sent())

	require.NoError(t, p.sharing.SetShared(board, false))
	assert.False(t, board.IsShared())
	assert.Equal(t, websocket.TypeUnshareBoard, dir.Sent()[1].Type)

	shadow := domain.NewBoard(remoteID, true)
	p.repo.Create(shadow)
	assert.True(t, errors.Is(p.sharing.SetShared(shadow, true), ErrNotOwner))
}

func TestSharingService_HandleUnsharing(t *testing.T) {
	p := newTestPeer(t)
	local := p.ownBoard(t, "board1", 0)
	p.sharing.HandleSharing(newFakeConn("directory"), remoteID.String())
	board, _ := p.repo.FindByID(remoteID)
	p.viewer.Select(remoteID)
	require.NoError(t, p.sharing.Activate(context.Background(), board))
	upstream := p.dialer.Conn(remoteID.PeerAddress())

	require.NoError(t, p.sharing.HandleUnsharing(newFakeConn("directory"), remoteID.String()))

	_, err := p.repo.FindByID(remoteID)
	assert.Error(t, err)
	assert.True(t, upstream.IsClosed())
	selected, ok := p.viewer.SelectedID()
	require.True(t, ok)
	assert.Equal(t, local.ID(), selected)

	// owned boards are never removed by an unsharing notice
	require.NoError(t, p.sharing.HandleUnsharing(newFakeConn("directory"), local.ID().String()))
	_, err = p.repo.FindByID(local.ID())
	assert.NoError(t, err)
}

func TestSharingService_ConnectionLost(t *testing.T) {
	p := newTestPeer(t)
	dir := newFakeConn("directory")
	p.sharing.SetDirectory(dir)
	p.sharing.HandleSharing(dir, remoteID.String())
	board, _ := p.repo.FindByID(remoteID)
	require.NoError(t, p.sharing.Activate(context.Background(), board))
	upstream := p.dialer.Conn(remoteID.PeerAddress())

	lost := p.sharing.ConnectionLost(upstream)
	assert.Equal(t, []domain.BoardID{remoteID}, lost)
	assert.True(t, board.IsUnreachable())
	_, ok := p.links.Get(remoteID)
	assert.False(t, ok)

	p.sharing.ConnectionLost(dir)
	_, err := p.sharing.Directory()
	assert.True(t, errors.Is(err, ErrDirectoryUnavailable))
}

func TestSharingService_ActivateDiscardsLinkForResharedBoard(t *testing.T) {
	p := newTestPeer(t)
	dir := newFakeConn("directory")
	require.NoError(t, p.sharing.HandleSharing(dir, remoteID.String()))
	first, _ := p.repo.FindByID(remoteID)

	var once sync.Once
	p.dialer.onDial = func(string) {
		once.Do(func() {
			p.sharing.HandleUnsharing(dir, remoteID.String())
			p.sharing.HandleSharing(dir, remoteID.String())
		})
	}

	require.NoError(t, p.sharing.Activate(context.Background(), first))
	second, err := p.repo.FindByID(remoteID)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	_, linked := p.links.Get(remoteID)
	assert.False(t, linked)

	require.NoError(t, p.boards.SelectBoard(context.Background(), remoteID))
	require.NoError(t, p.boards.SelectBoard(context.Background(), remoteID))

	conns := p.dialer.All()
	require.Len(t, conns, 2)
	assert.True(t, conns[0].IsClosed())
	assert.Empty(t, conns[0].Sent())
	assert.False(t, conns[1].IsClosed())
	assert.True(t, p.links.IsLink(remoteID, conns[1]))
}

func TestSharingService_ActivateClosesReplacedLink(t *testing.T) {
	p := newTestPeer(t)
	p.sharing.HandleSharing(newFakeConn("directory"), remoteID.String())
	board, _ := p.repo.FindByID(remoteID)
	stale := newFakeConn("stale")
	p.links.Set(remoteID, stale)

	require.NoError(t, p.sharing.Activate(context.Background(), board))

	assert.True(t, stale.IsClosed())
	assert.True(t, p.links.IsLink(remoteID, p.dialer.All()[0]))
}
