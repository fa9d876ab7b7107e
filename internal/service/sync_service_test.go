package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/protocol"
	"whiteboard-sync/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncService_OwnerRebroadcastsAcceptedUpdate(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 3, line("black", 0, 0), line("black", 1, 1))
	x, y, z := newFakeConn("x"), newFakeConn("y"), newFakeConn("z")
	for _, c := range []*fakeConn{x, y, z} {
		require.NoError(t, p.sync.HandleListen(c, board.ID().String()))
	}

	arg := protocol.EncodeUpdate(board.ID(), 3, line("red", 5, 5).String())
	require.NoError(t, p.sync.HandleUpdate(x, domain.MutationAddPath, arg))

	assert.Equal(t, int64(4), board.Version())
	assert.Len(t, board.Snapshot().Paths, 3)
	assert.Empty(t, x.Sent())
	assert.Equal(t, []sentMessage{{websocket.TypeBoardPathUpdate, arg}}, y.Sent())
	assert.Equal(t, []sentMessage{{websocket.TypeBoardPathUpdate, arg}}, z.Sent())
}

func TestSyncService_OwnerRejectsStaleUpdateAndResyncsSender(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 3, line("black", 0, 0), line("black", 1, 1))
	x, y := newFakeConn("x"), newFakeConn("y")
	p.sync.HandleListen(x, board.ID().String())
	p.sync.HandleListen(y, board.ID().String())

	first := protocol.EncodeUpdate(board.ID(), 3, line("red", 5, 5).String())
	second := protocol.EncodeUpdate(board.ID(), 3, line("blue", 6, 6).String())
	require.NoError(t, p.sync.HandleUpdate(y, domain.MutationAddPath, first))
	require.NoError(t, p.sync.HandleUpdate(x, domain.MutationAddPath, second))

	snap := board.Snapshot()
	assert.Equal(t, int64(4), snap.Version)
	require.Len(t, snap.Paths, 3)
	assert.Equal(t, "red", snap.Paths[2].Color)

	sent := x.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, websocket.TypeBoardPathUpdate, sent[0].Type)
	assert.Equal(t, websocket.TypeBoardError, sent[1].Type)
	assert.Equal(t, websocket.TypeBoardData, sent[2].Type)
	assert.Equal(t, protocol.EncodeSnapshot(snap), sent[2].Arg)

	// y's view never sees the rejected update
	assert.Empty(t, y.Sent())
}

func TestSyncService_UndoAndClearGate(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 0, line("black", 0, 0))
	x := newFakeConn("x")

	require.NoError(t, p.sync.HandleUpdate(x, domain.MutationUndo, protocol.EncodeUpdate(board.ID(), 0, "")))
	assert.Equal(t, int64(1), board.Version())
	assert.Empty(t, board.Snapshot().Paths)

	require.NoError(t, p.sync.HandleUpdate(x, domain.MutationClear, protocol.EncodeUpdate(board.ID(), 0, "")))
	assert.Equal(t, int64(1), board.Version())

	require.NoError(t, p.sync.HandleUpdate(x, domain.MutationClear, protocol.EncodeUpdate(board.ID(), 1, "")))
	assert.Equal(t, int64(2), board.Version())
}

func TestSyncService_DropsUnknownAndForeignBoards(t *testing.T) {
	p := newTestPeer(t)
	x := newFakeConn("x")

	unknown := protocol.EncodeUpdate(domain.NewBoardID(testHost, testPort, "missing"), 0, "")
	assert.NoError(t, p.sync.HandleUpdate(x, domain.MutationUndo, unknown))

	// registered under another peer's address but not a shadow
	foreignID := domain.NewBoardID("10.9.9.9", 1234, "b")
	require.NoError(t, p.repo.Create(domain.NewBoard(foreignID, false)))
	assert.NoError(t, p.sync.HandleUpdate(x, domain.MutationUndo, protocol.EncodeUpdate(foreignID, 0, "")))
	board, _ := p.repo.FindByID(foreignID)
	assert.Equal(t, int64(0), board.Version())

	assert.NoError(t, p.sync.HandleListen(x, foreignID.String()))
	assert.Equal(t, 0, p.subs.Count(foreignID))
	assert.Empty(t, x.Sent())
}

func TestSyncService_MalformedMessages(t *testing.T) {
	p := newTestPeer(t)
	p.ownBoard(t, "board1", 0)
	x := newFakeConn("x")

	err := p.sync.HandleUpdate(x, domain.MutationAddPath, "10.0.0.1:9000:board1%0%not-a-path")
	assert.True(t, errors.Is(err, protocol.ErrMalformedMessage))
	assert.True(t, errors.Is(p.sync.HandleListen(x, "nonsense"), protocol.ErrMalformedMessage))
	assert.True(t, errors.Is(p.sync.HandleBoardData(x, "10.0.0.1:9000:board1"), protocol.ErrMalformedMessage))
}

func TestSyncService_UnlistenUnknownIsNoop(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 0)
	x := newFakeConn("x")

	assert.NoError(t, p.sync.HandleUnlisten(x, board.ID().String()))
	assert.NoError(t, p.sync.HandleUnlisten(x, "10.0.0.1:9000:never"))
	assert.Equal(t, 0, p.subs.Count(board.ID()))

	p.sync.HandleListen(x, board.ID().String())
	p.sync.HandleUnlisten(x, board.ID().String())
	assert.Equal(t, 0, p.subs.Count(board.ID()))
}

func TestSyncService_GetBoardData(t *testing.T) {
	p := newTestPeer(t)
	board := p.ownBoard(t, "board1", 5, line("black", 1, 2), line("red", 3, 4))
	x := newFakeConn("x")

	require.NoError(t, p.sync.HandleGetBoardData(x, board.ID().String()))
	sent := x.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, websocket.TypeBoardData, sent[0].Type)
	assert.Equal(t, "10.0.0.1:9000:board1%5%black{1,2}red{3,4}", sent[0].Arg)
}

func shadowWithLink(t *testing.T, p *testPeer) (*domain.Board, *fakeConn) {
	t.Helper()
	id := domain.NewBoardID("10.0.0.2", 9001, "remote1")
	board := domain.NewBoard(id, true)
	require.NoError(t, p.repo.Create(board))
	link := newFakeConn("link")
	p.links.Set(id, link)
	return board, link
}

func TestSyncService_ShadowAppliesOwnerState(t *testing.T) {
	p := newTestPeer(t)
	board, link := shadowWithLink(t, p)
	p.viewer.Select(board.ID())
	rendersBefore := p.canvas.Renders()

	data := protocol.EncodeUpdate(board.ID(), 7, "black{1,1}red{2,2}")
	require.NoError(t, p.sync.HandleBoardData(link, data))
	assert.Equal(t, int64(7), board.Version())
	assert.Len(t, board.Snapshot().Paths, 2)

	require.NoError(t, p.sync.HandleUpdate(link, domain.MutationAddPath, protocol.EncodeUpdate(board.ID(), 7, "blue{3,3}")))
	assert.Equal(t, int64(8), board.Version())

	// stale update from the owner is ignored
	require.NoError(t, p.sync.HandleUpdate(link, domain.MutationUndo, protocol.EncodeUpdate(board.ID(), 7, "")))
	assert.Equal(t, int64(8), board.Version())
	assert.Len(t, board.Snapshot().Paths, 3)

	assert.Equal(t, rendersBefore+2, p.canvas.Renders())
	assert.Empty(t, link.Sent())
}

func TestSyncService_ShadowIgnoresOtherConnections(t *testing.T) {
	p := newTestPeer(t)
	board, _ := shadowWithLink(t, p)
	stranger := newFakeConn("stranger")

	require.NoError(t, p.sync.HandleBoardData(stranger, protocol.EncodeUpdate(board.ID(), 9, "black{1,1}")))
	require.NoError(t, p.sync.HandleUpdate(stranger, domain.MutationClear, protocol.EncodeUpdate(board.ID(), 0, "")))
	assert.Equal(t, int64(0), board.Version())
}

func TestSyncService_OwnerDeletedShadow(t *testing.T) {
	p := newTestPeer(t)
	board, link := shadowWithLink(t, p)

	require.NoError(t, p.sync.HandleBoardDeleted(link, board.ID().String()))
	_, err := p.repo.FindByID(board.ID())
	assert.Error(t, err)
	assert.True(t, link.IsClosed())
	_, ok := p.links.Get(board.ID())
	assert.False(t, ok)
}

func TestSyncService_PublishLocal(t *testing.T) {
	p := newTestPeer(t)
	owned := p.ownBoard(t, "board1", 0)
	sub := newFakeConn("sub")
	p.subs.Subscribe(owned.ID(), sub)

	undo := domain.Mutation{Board: owned.ID(), Kind: domain.MutationUndo, Version: 0}
	require.NoError(t, p.sync.PublishLocal(owned, undo))
	assert.Empty(t, sub.Sent(), "unshared boards are not pushed")

	owned.SetShared(true)
	require.NoError(t, p.sync.PublishLocal(owned, undo))
	assert.Equal(t, []sentMessage{{websocket.TypeBoardUndoUpdate, "10.0.0.1:9000:board1%0%"}}, sub.Sent())

	shadow, link := shadowWithLink(t, p)
	path := line("red", 1, 1)
	add := domain.Mutation{Board: shadow.ID(), Kind: domain.MutationAddPath, Version: 4, Path: &path}
	require.NoError(t, p.sync.PublishLocal(shadow, add))
	assert.Equal(t, []sentMessage{{websocket.TypeBoardPathUpdate, "10.0.0.2:9001:remote1%4%red{1,1}"}}, link.Sent())

	p.links.Remove(shadow.ID())
	err := p.sync.PublishLocal(shadow, add)
	assert.True(t, errors.Is(err, ErrBoardUnreachable))
}

var kindOfUpdate = map[websocket.MessageType]domain.MutationKind{
	websocket.TypeBoardPathUpdate:  domain.MutationAddPath,
	websocket.TypeBoardUndoUpdate:  domain.MutationUndo,
	websocket.TypeBoardClearUpdate: domain.MutationClear,
}

// replay applies the updates conn received to a fresh shadow of id.
func replay(t *testing.T, id domain.BoardID, conn *fakeConn) *domain.Board {
	t.Helper()
	shadow := domain.NewBoard(id, true)
	for _, msg := range conn.Sent() {
		kind, ok := kindOfUpdate[msg.Type]
		if !ok {
			continue
		}
		m, err := protocol.DecodeMutation(kind, msg.Arg)
		require.NoError(t, err)
		shadow.Apply(m)
	}
	return shadow
}

func TestSyncService_SubscribersSeeAcceptedOrderWithSlowSubscriber(t *testing.T) {
	for i := 0; i < 200; i++ {
		p := newTestPeer(t)
		p.sharing.SetDirectory(newFakeConn("directory"))
		board, err := p.boards.CreateBoard()
		require.NoError(t, err)
		require.NoError(t, p.boards.SetShared(true))

		x, y, slow := newFakeConn("x"), newFakeConn("y"), newFakeConn("slow")
		slow.delay = 200 * time.Microsecond
		for _, c := range []*fakeConn{slow, x, y} {
			require.NoError(t, p.sync.HandleListen(c, board.ID().String()))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.boards.DrawPath(line("red", 1, 1))
		}()
		go func() {
			defer wg.Done()
			p.sync.HandleUpdate(x, domain.MutationAddPath, protocol.EncodeUpdate(board.ID(), 1, "blue{2,2}"))
		}()
		wg.Wait()

		shadow := replay(t, board.ID(), y)
		require.Equal(t, board.Version(), shadow.Version(), "iteration %d", i)
		require.Equal(t, board.Snapshot().Paths, shadow.Snapshot().Paths, "iteration %d", i)
	}
}
