package protocol

import (
	"errors"
	"testing"

	"whiteboard-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var board1 = domain.NewBoardID("10.0.0.1", 9000, "board1")

func TestEncodeUpdate(t *testing.T) {
	assert.Equal(t, "10.0.0.1:9000:board1%3%", EncodeUpdate(board1, 3, ""))

	path := domain.Path{Color: "black", Points: []domain.Point{{X: 1, Y: 2}}}
	arg := EncodeMutation(domain.Mutation{Board: board1, Kind: domain.MutationAddPath, Version: 3, Path: &path})
	assert.Equal(t, "10.0.0.1:9000:board1%3%black{1,2}", arg)
}

func TestDecodeMutation(t *testing.T) {
	m, err := DecodeMutation(domain.MutationAddPath, "10.0.0.1:9000:board1%3%black{1,2;3,4}")
	require.NoError(t, err)
	assert.Equal(t, board1, m.Board)
	assert.Equal(t, int64(3), m.Version)
	require.NotNil(t, m.Path)
	assert.Len(t, m.Path.Points, 2)

	m, err = DecodeMutation(domain.MutationUndo, "10.0.0.1:9000:board1%7%")
	require.NoError(t, err)
	assert.Equal(t, domain.MutationUndo, m.Kind)
	assert.Nil(t, m.Path)
}

func TestDecodeMutation_Malformed(t *testing.T) {
	cases := []struct {
		kind domain.MutationKind
		arg  string
	}{
		{domain.MutationUndo, "10.0.0.1:9000:board1"},
		{domain.MutationUndo, "10.0.0.1:9000:board1%x%"},
		{domain.MutationUndo, "10.0.0.1:9000:board1%-1%"},
		{domain.MutationClear, "nohost%1%"},
		{domain.MutationAddPath, "10.0.0.1:9000:board1%1%"},
		{domain.MutationAddPath, "10.0.0.1:9000:board1%1%black{1,2}red{3,4}"},
	}
	for _, c := range cases {
		_, err := DecodeMutation(c.kind, c.arg)
		assert.True(t, errors.Is(err, ErrMalformedMessage), "input %q", c.arg)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := domain.Snapshot{
		ID:      board1,
		Version: 12,
		Paths: []domain.Path{
			{Color: "black", Points: []domain.Point{{X: 1, Y: 1}}},
			{Color: "red", Points: []domain.Point{{X: 2, Y: 2}, {X: 3, Y: 3}}},
		},
	}

	decoded, err := DecodeSnapshot(EncodeSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestDecodeIdentity(t *testing.T) {
	id, err := DecodeIdentity("10.0.0.1:9000:board1")
	require.NoError(t, err)
	assert.Equal(t, board1, id)

	id, err = DecodeIdentity("10.0.0.1:9000:board1%4%black{1,1}")
	require.NoError(t, err)
	assert.Equal(t, board1, id)

	_, err = DecodeIdentity("garbage")
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}
