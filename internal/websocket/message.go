package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

type MessageType string

const (
	TypeListenBoard      MessageType = "BOARD_LISTEN"
	TypeUnlistenBoard    MessageType = "BOARD_UNLISTEN"
	TypeGetBoardData     MessageType = "GET_BOARD_DATA"
	TypeBoardData        MessageType = "BOARD_DATA"
	TypeBoardPathUpdate  MessageType = "BOARD_PATH_UPDATE"
	TypeBoardUndoUpdate  MessageType = "BOARD_UNDO_UPDATE"
	TypeBoardClearUpdate MessageType = "BOARD_CLEAR_UPDATE"
	TypeBoardDeleted     MessageType = "BOARD_DELETED"
	TypeBoardError       MessageType = "BOARD_ERROR"

	TypeShareBoard     MessageType = "SHARE_BOARD"
	TypeUnshareBoard   MessageType = "UNSHARE_BOARD"
	TypeSharingBoard   MessageType = "SHARING_BOARD"
	TypeUnsharingBoard MessageType = "UNSHARING_BOARD"
)

// Message is the envelope for a named event with a single string argument.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Arg       string      `json:"arg"`
}

func NewMessage(msgType MessageType, arg string) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Arg:       arg,
	}
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeFrame decodes one websocket frame. The write pump may coalesce
// several envelopes into a frame separated by newlines; JSON escapes
// newlines inside strings, so splitting on them is safe. A malformed
// envelope is skipped and reported in the returned error; the envelopes
// around it are still returned.
func DecodeFrame(frame []byte) ([]*Message, error) {
	var messages []*Message
	var result error
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			result = multierror.Append(result, fmt.Errorf("decode envelope: %w", err))
			continue
		}
		if msg.Type == "" {
			result = multierror.Append(result, fmt.Errorf("decode envelope: missing type"))
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, result
}
