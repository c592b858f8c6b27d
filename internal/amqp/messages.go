package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// DocumentSyncMessage tells the mirror worker that a user's document changed.
// It carries no body; the worker reads the stored document by user id and
// skips the message if the stored version has moved past Version.
type DocumentSyncMessage struct {
	UserID    string    `json:"user_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDocumentSyncMessage(userID string, version int64) *DocumentSyncMessage {
	return &DocumentSyncMessage{
		UserID:    userID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *DocumentSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DocumentSyncMessageFromJSON(data []byte) (*DocumentSyncMessage, error) {
	var msg DocumentSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("document sync message without user_id")
	}
	return &msg, nil
}
