// Пакет model — доменные модели certgate.
// Запрос справки, исход выполнения, входящие сообщения бота и ключи доступа.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IdentifierLength — длина национального идентификатора (DNI).
const IdentifierLength = 8

// Ошибки валидации запроса.
var (
	// ErrInvalidIdentifier — идентификатор не состоит ровно из 8 цифр
	ErrInvalidIdentifier = errors.New("идентификатор должен состоять ровно из 8 цифр")
	// ErrInvalidKind — неизвестный тип справки
	ErrInvalidKind = errors.New("неизвестный тип справки")
)

// Kind — тип справки об антецедентах.
type Kind string

const (
	// KindPenal — уголовные антецеденты (ANTECEDENTES PENALES)
	KindPenal Kind = "penal"
	// KindPolice — полицейские антецеденты (ANTECEDENTES POLICIALES)
	KindPolice Kind = "police"
	// KindJudicial — судебные антецеденты (ANTECEDENTES JUDICIALES)
	KindJudicial Kind = "judicial"
)

// Kinds — все поддерживаемые типы справок.
var Kinds = []Kind{KindPenal, KindPolice, KindJudicial}

// ParseKind разбирает тип справки. Принимает внутренние имена
// (penal, police, judicial) и исторические имена маршрутов
// (penales, policiales, judiciales) без учёта регистра.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "penal", "penales":
		return KindPenal, nil
	case "police", "policiales":
		return KindPolice, nil
	case "judicial", "judiciales":
		return KindJudicial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Valid проверяет, что тип справки входит в закрытое множество.
func (k Kind) Valid() bool {
	switch k {
	case KindPenal, KindPolice, KindJudicial:
		return true
	}
	return false
}

// Label возвращает метку вида записи (PENALES, POLICIALES, JUDICIALES).
func (k Kind) Label() string {
	switch k {
	case KindPenal:
		return "PENALES"
	case KindPolice:
		return "POLICIALES"
	case KindJudicial:
		return "JUDICIALES"
	}
	return strings.ToUpper(string(k))
}

// QueryRequest — запрос справки по идентификатору.
type QueryRequest struct {
	// Identifier — национальный идентификатор, ровно 8 цифр
	Identifier string
	// Kind — тип справки
	Kind Kind
	// SubmittedAt — момент поступления запроса
	SubmittedAt time.Time
	// Deadline — сколько вызывающая сторона готова ждать (0 — значение по умолчанию)
	Deadline time.Duration
}

// Validate проверяет запрос до любого обращения к сессии.
func (r QueryRequest) Validate() error {
	if !ValidIdentifier(r.Identifier) {
		return ErrInvalidIdentifier
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(r.Kind))
	}
	return nil
}

// ValidIdentifier проверяет, что строка состоит ровно из 8 ASCII-цифр.
func ValidIdentifier(s string) bool {
	if len(s) != IdentifierLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Outcome — исход выполнения запроса.
type Outcome string

const (
	// OutcomeSuccess — бот прислал подтверждённый ответ по идентификатору
	OutcomeSuccess Outcome = "success"
	// OutcomeNotFound — бот ответил, что данных нет
	OutcomeNotFound Outcome = "not_found"
	// OutcomeTimeout — ответ не получен за отведённые попытки или срок
	OutcomeTimeout Outcome = "timeout"
	// OutcomeSessionUnavailable — сессия с ботом не готова
	OutcomeSessionUnavailable Outcome = "session_unavailable"
	// OutcomeTransportError — сбой канала, не устранённый переподключением
	OutcomeTransportError Outcome = "transport_error"
	// OutcomeValidationError — запрос не прошёл валидацию
	OutcomeValidationError Outcome = "validation_error"
)

// Field keys — фиксированный словарь ключей извлекаемых полей.
const (
	FieldIdentifier = "identifier"
	FieldGivenNames = "given_names"
	FieldSurnames   = "surnames"
	FieldGender     = "gender"
	FieldAge        = "age"
	FieldRecordKind = "record_kind"
)

// Fields — поля, извлечённые из текста ответа. Отсутствующие поля не хранятся.
type Fields map[string]string

// Attachment — файл, приложенный ботом к ответу (обычно PDF).
type Attachment struct {
	Data     []byte
	FileName string
	MimeType string
}

// QueryResult — результат выполнения запроса.
type QueryResult struct {
	// Outcome — исход
	Outcome Outcome
	// Detail — человекочитаемое пояснение
	Detail string
	// RawText — текст подтверждающего сообщения (только при success)
	RawText string
	// Attachment — вложение (только при success и наличии документа)
	Attachment *Attachment
	// Fields — извлечённые поля (только при success)
	Fields Fields
	// Attempts — количество выполненных попыток
	Attempts int
}

// Failed создаёт результат без полезной нагрузки.
func Failed(outcome Outcome, detail string) QueryResult {
	return QueryResult{Outcome: outcome, Detail: detail}
}
