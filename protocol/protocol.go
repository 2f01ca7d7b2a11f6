package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidFrame = errors.New("protocol: invalid frame")
	ErrMissingType  = errors.New("protocol: missing type discriminator")
)

// Decode parses one UTF-8 text frame into a Message. The frame must be a
// JSON object whose "type" field is a non-empty string; the payload is
// returned raw for the handler to decode.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// Encode serialises a typed payload under the given discriminator. A nil
// payload produces a frame with no payload field.
func Encode(msgType string, payload any) ([]byte, error) {
	env := struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: msgType, Payload: payload}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads built entirely by the server, where a
// marshal failure is a programming error.
func MustEncode(msgType string, payload any) []byte {
	data, err := Encode(msgType, payload)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %s: %v", msgType, err))
	}
	return data
}

// EncodeError builds an ERROR frame.
func EncodeError(code, message string) []byte {
	return MustEncode(MsgError, ErrorMsg{Code: code, Message: message})
}
