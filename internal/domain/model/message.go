package model

import "time"

// MediaClass — класс медиа во входящем сообщении.
type MediaClass string

const (
	// MediaDocument — файл-документ (PDF и т.п.)
	MediaDocument MediaClass = "document"
	// MediaPhoto — фотография
	MediaPhoto MediaClass = "photo"
	// MediaOther — прочие виды медиа
	MediaOther MediaClass = "other"
)

// MediaRef — ссылка на медиа во входящем сообщении.
// Locator принадлежит транспорту и используется только им.
type MediaRef struct {
	Class    MediaClass
	FileName string
	MimeType string
	Size     int64
	Locator  any
}

// IsDocument сообщает, является ли медиа документом.
func (m *MediaRef) IsDocument() bool {
	return m != nil && m.Class == MediaDocument
}

// InboundMessage — сообщение из переписки с ботом.
// Не изменяется после чтения.
type InboundMessage struct {
	ID       int
	Text     string
	Media    *MediaRef
	Date     time.Time
	Outgoing bool
}
