// Package protocol encodes and decodes the string arguments carried by board
// messages.
//
//	identity:     host:port:boardid
//	update:       host:port:boardid%version%payload
//	full state:   host:port:boardid%version%path1path2...
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"whiteboard-sync/internal/domain"
)

var ErrMalformedMessage = errors.New("malformed board message")

const separator = "%"

// Update is a decoded "identity%version%payload" argument.
type Update struct {
	Board   domain.BoardID
	Version int64
	Payload string
}

func EncodeUpdate(id domain.BoardID, version int64, payload string) string {
	return id.String() + separator + strconv.FormatInt(version, 10) + separator + payload
}

func DecodeUpdate(arg string) (Update, error) {
	parts := strings.SplitN(arg, separator, 3)
	if len(parts) != 3 {
		return Update{}, fmt.Errorf("%w: %q", ErrMalformedMessage, arg)
	}

	id, err := domain.ParseBoardID(parts[0])
	if err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || version < 0 {
		return Update{}, fmt.Errorf("%w: bad version in %q", ErrMalformedMessage, arg)
	}

	return Update{Board: id, Version: version, Payload: parts[2]}, nil
}

// DecodeIdentity accepts either a bare identity or any argument that starts
// with one followed by "%".
func DecodeIdentity(arg string) (domain.BoardID, error) {
	name, _, _ := strings.Cut(arg, separator)
	id, err := domain.ParseBoardID(name)
	if err != nil {
		return domain.BoardID{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return id, nil
}

func EncodeMutation(m domain.Mutation) string {
	payload := ""
	if m.Kind == domain.MutationAddPath && m.Path != nil {
		payload = m.Path.String()
	}
	return EncodeUpdate(m.Board, m.Version, payload)
}

// DecodeMutation decodes an update argument for the given kind. Add-path
// payloads must hold exactly one path; undo and clear payloads are ignored.
func DecodeMutation(kind domain.MutationKind, arg string) (domain.Mutation, error) {
	u, err := DecodeUpdate(arg)
	if err != nil {
		return domain.Mutation{}, err
	}

	m := domain.Mutation{Board: u.Board, Kind: kind, Version: u.Version}
	if kind == domain.MutationAddPath {
		path, err := domain.ParsePath(u.Payload)
		if err != nil {
			return domain.Mutation{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		m.Path = &path
	}
	return m, nil
}

func EncodeSnapshot(s domain.Snapshot) string {
	return EncodeUpdate(s.ID, s.Version, domain.JoinPaths(s.Paths))
}

func DecodeSnapshot(arg string) (domain.Snapshot, error) {
	u, err := DecodeUpdate(arg)
	if err != nil {
		return domain.Snapshot{}, err
	}

	paths, err := domain.ParsePaths(u.Payload)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return domain.Snapshot{ID: u.Board, Version: u.Version, Paths: paths}, nil
}
