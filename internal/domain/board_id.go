package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedIdentity = errors.New("malformed board identity")

// BoardID identifies a board across the whole system. Its wire form is
// "host:port:boardid".
type BoardID struct {
	Host  string
	Port  int
	Board string
}

func NewBoardID(host string, port int, board string) BoardID {
	return BoardID{Host: host, Port: port, Board: board}
}

// ParseBoardID parses "host:port:boardid". The board part may not be empty.
func ParseBoardID(s string) (BoardID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return BoardID{}, fmt.Errorf("%w: %q", ErrMalformedIdentity, s)
	}

	if parts[0] == "" || parts[2] == "" {
		return BoardID{}, fmt.Errorf("%w: %q", ErrMalformedIdentity, s)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return BoardID{}, fmt.Errorf("%w: bad port in %q", ErrMalformedIdentity, s)
	}

	return BoardID{Host: parts[0], Port: port, Board: parts[2]}, nil
}

func (id BoardID) String() string {
	return fmt.Sprintf("%s:%d:%s", id.Host, id.Port, id.Board)
}

// PeerAddress is the "host:port" of the owning peer.
func (id BoardID) PeerAddress() string {
	return PeerAddress(id.Host, id.Port)
}

func (id BoardID) IsZero() bool {
	return id == BoardID{}
}

func PeerAddress(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

func (id BoardID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *BoardID) UnmarshalText(text []byte) error {
	parsed, err := ParseBoardID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
