// Package rescan handles versions that were admitted without a scan verdict.
// The API enqueues them; the worker re-runs the scanner and settles each one.
package rescan

import "encoding/json"

// Message identifies one stored version awaiting a late verdict.
type Message struct {
	DocumentID string `json:"documentId"`
	Version    int    `json:"version"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
