// query.go — выдача справок об антецедентах.
// GET /antpen|/antpol|/antjud?dni=XXXXXXXX — исторические маршруты
// GET /api/v1/queries/{kind}/{identifier} — маршрут с типом справки в пути
package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/certgate/internal/api/errors"
	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
)

// Submitter выполняет запрос справки. Реализуется service.Gateway.
type Submitter interface {
	Submit(ctx context.Context, req model.QueryRequest) model.QueryResult
}

// QueryHandler — обработчик запросов справок.
type QueryHandler struct {
	submitter Submitter
	clock     clock.Clock
	logger    *slog.Logger
}

// NewQueryHandler создаёт обработчик запросов справок.
func NewQueryHandler(submitter Submitter, clk clock.Clock, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		submitter: submitter,
		clock:     clk,
		logger:    logger.With(slog.String("component", "query_handler")),
	}
}

// queryResponse — успешный ответ. Имена полей совпадают с форматом,
// на который рассчитаны существующие клиенты.
type queryResponse struct {
	Success     bool         `json:"success"`
	DNI         string       `json:"dni"`
	Tipo        string       `json:"tipo"`
	Timestamp   string       `json:"timestamp"`
	Data        model.Fields `json:"data"`
	Attempts    int          `json:"attempts"`
	PDFBase64   string       `json:"pdf_base64,omitempty"`
	PDFFilename string       `json:"pdf_filename,omitempty"`
}

// Legacy возвращает обработчик исторического маршрута для типа kind.
// Идентификатор передаётся параметром dni.
func (h *QueryHandler) Legacy(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dni := strings.TrimSpace(r.URL.Query().Get("dni"))
		if dni == "" {
			apierrors.ValidationError(w, "параметр dni обязателен")
			return
		}
		h.serve(w, r, kind, dni)
	}
}

// ByPath — обработчик GET /api/v1/queries/{kind}/{identifier}.
func (h *QueryHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	h.serve(w, r, kind, chi.URLParam(r, "identifier"))
}

func (h *QueryHandler) serve(w http.ResponseWriter, r *http.Request, kind model.Kind, identifier string) {
	if !model.ValidIdentifier(identifier) {
		apierrors.ValidationError(w, model.ErrInvalidIdentifier.Error())
		return
	}

	req := model.QueryRequest{
		Identifier:  identifier,
		Kind:        kind,
		SubmittedAt: h.clock.Now(),
	}
	res := h.submitter.Submit(r.Context(), req)
	if apierrors.WriteOutcome(w, res) {
		h.logger.Info("Запрос справки завершился без результата",
			slog.String("kind", string(kind)),
			slog.String("outcome", string(res.Outcome)),
			slog.String("detail", res.Detail),
		)
		return
	}

	if res.Attachment != nil && wantsPDF(r) {
		h.writeAttachment(w, kind, identifier, res.Attachment)
		return
	}

	resp := queryResponse{
		Success:   true,
		DNI:       identifier,
		Tipo:      "ANTECEDENTES_" + kind.Label(),
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
		Data:      res.Fields,
		Attempts:  res.Attempts,
	}
	if resp.Data == nil {
		resp.Data = model.Fields{}
	}
	if res.Attachment != nil {
		resp.PDFBase64 = base64.StdEncoding.EncodeToString(res.Attachment.Data)
		resp.PDFFilename = attachmentName(kind, identifier)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) writeAttachment(w http.ResponseWriter, kind model.Kind, identifier string, att *model.Attachment) {
	ct := att.MimeType
	if ct == "" {
		ct = "application/pdf"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": attachmentName(kind, identifier),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(att.Data); err != nil {
		h.logger.Warn("Не удалось отправить вложение", slog.String("error", err.Error()))
	}
}

// attachmentName — имя файла справки: antecedentes_penales_12345678.pdf.
func attachmentName(kind model.Kind, identifier string) string {
	return "antecedentes_" + strings.ToLower(kind.Label()) + "_" + identifier + ".pdf"
}

// wantsPDF проверяет, что клиент явно запросил application/pdf.
func wantsPDF(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/pdf" {
			return true
		}
	}
	return false
}
