package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// convertHistory преобразует ответ messages.getHistory в доменные сообщения.
// Служебные и пустые сообщения пропускаются.
func convertHistory(res tg.MessagesMessagesClass) []model.InboundMessage {
	var raw []tg.MessageClass
	switch v := res.(type) {
	case *tg.MessagesMessages:
		raw = v.Messages
	case *tg.MessagesMessagesSlice:
		raw = v.Messages
	case *tg.MessagesChannelMessages:
		raw = v.Messages
	default:
		return nil
	}

	out := make([]model.InboundMessage, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, convertMessage(msg))
	}
	return out
}

func convertMessage(msg *tg.Message) model.InboundMessage {
	in := model.InboundMessage{
		ID:       msg.ID,
		Text:     msg.Message,
		Date:     time.Unix(int64(msg.Date), 0),
		Outgoing: msg.Out,
	}
	if media, ok := msg.GetMedia(); ok {
		in.Media = convertMedia(media)
	}
	return in
}

func convertMedia(media tg.MessageMediaClass) *model.MediaRef {
	switch m := media.(type) {
	case *tg.MessageMediaDocument:
		docClass, ok := m.GetDocument()
		if !ok {
			return &model.MediaRef{Class: model.MediaOther}
		}
		doc, ok := docClass.(*tg.Document)
		if !ok {
			return &model.MediaRef{Class: model.MediaOther}
		}
		ref := &model.MediaRef{
			Class:    model.MediaDocument,
			MimeType: doc.MimeType,
			Size:     doc.Size,
			Locator:  doc.AsInputDocumentFileLocation(),
		}
		for _, attr := range doc.Attributes {
			if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
				ref.FileName = fn.FileName
			}
		}
		return ref
	case *tg.MessageMediaPhoto:
		return &model.MediaRef{Class: model.MediaPhoto}
	default:
		return &model.MediaRef{Class: model.MediaOther}
	}
}
