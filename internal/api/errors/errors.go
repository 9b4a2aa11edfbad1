// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// Коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
	CodeTransportError     = "TRANSPORT_ERROR"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 ресурс уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// RateLimited — 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// SessionUnavailable — 503 сессия мессенджера не готова.
func SessionUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeSessionUnavailable, message)
}

// TransportError — 502 сбой связи с мессенджером.
func TransportError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeTransportError, message)
}

// UpstreamTimeout — 504 бот не ответил в срок.
func UpstreamTimeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGatewayTimeout, CodeUpstreamTimeout, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// WriteOutcome записывает ошибку, соответствующую неуспешному исходу запроса.
// Для OutcomeSuccess ничего не пишет и возвращает false.
func WriteOutcome(w http.ResponseWriter, res model.QueryResult) bool {
	msg := res.Detail
	switch res.Outcome {
	case model.OutcomeSuccess:
		return false
	case model.OutcomeValidationError:
		ValidationError(w, orDefault(msg, "некорректный запрос"))
	case model.OutcomeNotFound:
		NotFound(w, orDefault(msg, "сведения по идентификатору не найдены"))
	case model.OutcomeSessionUnavailable:
		SessionUnavailable(w, orDefault(msg, "сессия мессенджера недоступна"))
	case model.OutcomeTransportError:
		TransportError(w, orDefault(msg, "сбой связи с мессенджером"))
	case model.OutcomeTimeout:
		UpstreamTimeout(w, orDefault(msg, "бот не ответил в отведённое время"))
	default:
		InternalError(w, orDefault(msg, "неизвестный исход запроса"))
	}
	return true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
