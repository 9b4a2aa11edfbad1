// attachment.go — получение вложения из подтверждённого ответа бота.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/session"
)

// ErrAttachmentTooLarge — вложение превышает допустимый размер.
var ErrAttachmentTooLarge = errors.New("вложение превышает допустимый размер")

var attachmentBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cg_attachment_bytes_total",
	Help: "Общее количество скачанных байт вложений.",
})

// AttachmentFetcher скачивает документы из сообщений бота.
type AttachmentFetcher struct {
	session  Session
	maxBytes int64
	logger   *slog.Logger
}

// NewAttachmentFetcher создаёт загрузчик вложений. maxBytes <= 0 — без ограничения.
func NewAttachmentFetcher(s Session, maxBytes int64, logger *slog.Logger) *AttachmentFetcher {
	return &AttachmentFetcher{
		session:  s,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "attachment")),
	}
}

// Fetch возвращает содержимое документа из сообщения.
// Если в сообщении нет документа, возвращает (nil, nil).
// Ошибки скачивания и превышение размера возвращаются как *session.TransportError.
func (f *AttachmentFetcher) Fetch(ctx context.Context, msg model.InboundMessage) (*model.Attachment, error) {
	if !msg.Media.IsDocument() {
		return nil, nil
	}
	ref := msg.Media
	if f.maxBytes > 0 && ref.Size > f.maxBytes {
		return nil, &session.TransportError{Op: "download", Err: fmt.Errorf("%w: %s", ErrAttachmentTooLarge, humanize.IBytes(uint64(ref.Size)))}
	}

	var buf bytes.Buffer
	if ref.Size > 0 {
		buf.Grow(int(ref.Size))
	}
	var w io.Writer = &buf
	var lw *limitedWriter
	if f.maxBytes > 0 {
		lw = &limitedWriter{w: &buf, remaining: f.maxBytes}
		w = lw
	}

	if err := f.session.Download(ctx, ref, w); err != nil {
		if lw != nil && lw.exceeded {
			err = ErrAttachmentTooLarge
		}
		if !session.IsTransport(err) {
			err = &session.TransportError{Op: "download", Err: err}
		}
		return nil, err
	}

	attachmentBytesTotal.Add(float64(buf.Len()))
	f.logger.Debug("Вложение получено",
		slog.Int("message_id", msg.ID),
		slog.String("file_name", ref.FileName),
		slog.String("size", humanize.IBytes(uint64(buf.Len()))),
	)

	return &model.Attachment{
		Data:     buf.Bytes(),
		FileName: ref.FileName,
		MimeType: ref.MimeType,
	}, nil
}

// limitedWriter прерывает запись после remaining байт.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	exceeded  bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		l.exceeded = true
		return 0, ErrAttachmentTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}
