package protocol

import (
	"encoding/json"
	"fmt"
)

// FileRecord is the latest known state of one tracked file.
type FileRecord struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updatedAt"` // milliseconds since epoch, set by the writer
}

// MessageType discriminates server messages.
type MessageType string

const (
	TypeInit       MessageType = "init"
	TypeFileUpdate MessageType = "file-update"
)

// Message is one server → client message. Only the fields of its Type are set.
type Message struct {
	Type MessageType

	// init
	Files  []FileRecord
	Latest string

	// file-update
	File *FileRecord
}

// NewInit returns an init message. files must already be ordered newest-first.
func NewInit(files []FileRecord, latest string) Message {
	if files == nil {
		files = []FileRecord{}
	}
	return Message{Type: TypeInit, Files: files, Latest: latest}
}

// NewFileUpdate returns a file-update message carrying a copy of rec.
func NewFileUpdate(rec FileRecord) Message {
	return Message{Type: TypeFileUpdate, File: &rec}
}

type initWire struct {
	Type   MessageType  `json:"type"`
	Files  []FileRecord `json:"files"`
	Latest string       `json:"latest,omitempty"`
}

type fileUpdateWire struct {
	Type MessageType `json:"type"`
	File *FileRecord `json:"file"`
}

// MarshalJSON encodes only the fields that belong to m.Type.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeInit:
		files := m.Files
		if files == nil {
			files = []FileRecord{}
		}
		return json.Marshal(initWire{Type: TypeInit, Files: files, Latest: m.Latest})
	case TypeFileUpdate:
		if m.File == nil {
			return nil, fmt.Errorf("protocol: file-update without file")
		}
		return json.Marshal(fileUpdateWire{Type: TypeFileUpdate, File: m.File})
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
}

// UnmarshalJSON decodes a message and rejects unknown or incomplete variants.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   MessageType  `json:"type"`
		Files  []FileRecord `json:"files"`
		Latest string       `json:"latest"`
		File   *FileRecord  `json:"file"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case TypeInit:
		files := raw.Files
		if files == nil {
			files = []FileRecord{}
		}
		*m = Message{Type: TypeInit, Files: files, Latest: raw.Latest}
	case TypeFileUpdate:
		if raw.File == nil {
			return fmt.Errorf("protocol: file-update without file")
		}
		*m = Message{Type: TypeFileUpdate, File: raw.File}
	default:
		return fmt.Errorf("protocol: unknown message type %q", raw.Type)
	}
	return nil
}

// Encode returns the JSON text frame for m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one JSON text frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: decode: %w", err)
	}
	return m, nil
}
