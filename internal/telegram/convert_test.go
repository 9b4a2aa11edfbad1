package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// TestConvertHistory проверяет преобразование истории переписки.
func TestConvertHistory(t *testing.T) {
	doc := &tg.Document{
		ID:         77,
		AccessHash: 88,
		MimeType:   "application/pdf",
		Size:       2048,
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: "certificado.pdf"},
		},
	}
	text := &tg.Message{ID: 1, Date: 1700000000, Message: "hola", Out: true}
	withDoc := &tg.Message{ID: 2, Date: 1700000005, Message: "CERTIFICADO DNI ➾ 12345678"}
	docMedia := &tg.MessageMediaDocument{}
	docMedia.SetDocument(doc)
	withDoc.SetMedia(docMedia)
	withPhoto := &tg.Message{ID: 3, Date: 1700000006}
	withPhoto.SetMedia(&tg.MessageMediaPhoto{})

	res := &tg.MessagesMessagesSlice{Messages: []tg.MessageClass{
		withPhoto,
		withDoc,
		&tg.MessageService{ID: 4},
		text,
	}}
	got := convertHistory(res)
	if len(got) != 3 {
		t.Fatalf("получено %d сообщений, ожидалось 3", len(got))
	}

	if got[0].Media == nil || got[0].Media.Class != model.MediaPhoto {
		t.Errorf("сообщение 3: ожидалось фото, получено %+v", got[0].Media)
	}

	m := got[1]
	if m.ID != 2 || !m.Date.Equal(time.Unix(1700000005, 0)) {
		t.Errorf("сообщение 2: ID=%d Date=%v", m.ID, m.Date)
	}
	if !m.Media.IsDocument() {
		t.Fatalf("сообщение 2: ожидался документ, получено %+v", m.Media)
	}
	if m.Media.FileName != "certificado.pdf" || m.Media.MimeType != "application/pdf" || m.Media.Size != 2048 {
		t.Errorf("медиа = %+v", m.Media)
	}
	loc, ok := m.Media.Locator.(*tg.InputDocumentFileLocation)
	if !ok || loc.ID != 77 || loc.AccessHash != 88 {
		t.Errorf("Locator = %#v", m.Media.Locator)
	}

	if !got[2].Outgoing || got[2].Media != nil {
		t.Errorf("сообщение 1: Outgoing=%v Media=%v", got[2].Outgoing, got[2].Media)
	}
}

// TestConvertHistory_NotModified проверяет пустой результат.
func TestConvertHistory_NotModified(t *testing.T) {
	if got := convertHistory(&tg.MessagesMessagesNotModified{}); got != nil {
		t.Errorf("ожидался nil, получено %v", got)
	}
}
