// Пакет matcher — классификация сообщений бота относительно запроса.
// Решает, является ли сообщение указанием подождать, ответом «нет данных»
// или подтверждённым ответом по конкретному идентификатору.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/parser"
)

// DecisionKind — вид решения по сообщению.
type DecisionKind int

const (
	// None — сообщение не относится к запросу
	None DecisionKind = iota
	// Wait — бот просит подождать Delay
	Wait
	// NotFound — бот сообщает, что данных нет
	NotFound
	// Match — подтверждённый ответ по идентификатору запроса
	Match
)

// String возвращает имя решения для логов и метрик.
func (k DecisionKind) String() string {
	switch k {
	case Wait:
		return "wait"
	case NotFound:
		return "not_found"
	case Match:
		return "match"
	default:
		return "none"
	}
}

// Decision — решение по сообщению.
type Decision struct {
	Kind    DecisionKind
	Message model.InboundMessage
	Delay   time.Duration
}

// Config — формулировки бота, по которым принимаются решения.
type Config struct {
	// Markers — маркеры форматирования, удаляемые перед сравнением
	Markers []string
	// WaitKeywords — слова, которые все должны присутствовать в указании подождать
	WaitKeywords []string
	// WaitPattern — регулярное выражение с группой, содержащей число секунд
	WaitPattern string
	// NotFound — фразы «нет данных» (сравнение на равенство после очистки)
	NotFound []string
	// IdentifierLabel — метка идентификатора в ответе (DNI)
	IdentifierLabel string
	// Separators — разделители между меткой и значением
	Separators []string
	// ConfirmTokens — токены, хотя бы один из которых подтверждает ответ
	ConfirmTokens []string
}

// Matcher — скомпилированный классификатор. Безопасен для конкурентного использования.
type Matcher struct {
	cleaner   *strings.Replacer
	keywords  []string
	waitRe    *regexp.Regexp
	notFound  map[string]struct{}
	idRe      *regexp.Regexp
	confirmer []string
}

// New компилирует конфигурацию классификатора.
func New(cfg Config) (*Matcher, error) {
	if cfg.IdentifierLabel == "" {
		return nil, errors.New("не задана метка идентификатора")
	}
	if len(cfg.Separators) == 0 {
		return nil, errors.New("не задан ни один разделитель")
	}
	if len(cfg.ConfirmTokens) == 0 {
		return nil, errors.New("не задан ни один подтверждающий токен")
	}

	m := &Matcher{
		cleaner:   parser.NewCleaner(cfg.Markers),
		notFound:  make(map[string]struct{}, len(cfg.NotFound)),
		confirmer: cfg.ConfirmTokens,
	}

	for _, kw := range cfg.WaitKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			m.keywords = append(m.keywords, kw)
		}
	}
	if cfg.WaitPattern != "" {
		re, err := regexp.Compile(cfg.WaitPattern)
		if err != nil {
			return nil, fmt.Errorf("wait pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, errors.New("wait pattern: нужна группа с числом секунд")
		}
		m.waitRe = re
	}

	for _, phrase := range cfg.NotFound {
		if p := strings.TrimSpace(m.cleaner.Replace(phrase)); p != "" {
			m.notFound[p] = struct{}{}
		}
	}

	expr := `(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(cfg.IdentifierLabel) +
		`[ \t]*` + parser.SeparatorPattern(cfg.Separators) + `[ \t]*(\d+)`
	idRe, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("identifier pattern: %w", err)
	}
	m.idRe = idRe

	return m, nil
}

// Decide классифицирует одно сообщение относительно запроса.
// Порядок проверок: указание подождать, «нет данных», совпадение.
func (m *Matcher) Decide(msg model.InboundMessage, req model.QueryRequest) Decision {
	clean := m.cleaner.Replace(msg.Text)

	if delay, ok := m.waitDelay(clean); ok {
		return Decision{Kind: Wait, Message: msg, Delay: delay}
	}

	if _, ok := m.notFound[strings.TrimSpace(clean)]; ok {
		return Decision{Kind: NotFound, Message: msg}
	}

	if m.mentions(clean, req.Identifier) && m.confirmed(clean) {
		return Decision{Kind: Match, Message: msg}
	}

	return Decision{Kind: None, Message: msg}
}

// Scan просматривает пакет сообщений от старых к новым и возвращает первое
// значимое решение. Сообщения, для которых skip возвращает true, пропускаются.
func (m *Matcher) Scan(batch []model.InboundMessage, req model.QueryRequest, skip func(id int) bool) Decision {
	for _, msg := range batch {
		if skip != nil && skip(msg.ID) {
			continue
		}
		if d := m.Decide(msg, req); d.Kind != None {
			return d
		}
	}
	return Decision{Kind: None}
}

func (m *Matcher) waitDelay(clean string) (time.Duration, bool) {
	if m.waitRe == nil || len(m.keywords) == 0 {
		return 0, false
	}
	lower := strings.ToLower(clean)
	for _, kw := range m.keywords {
		if !strings.Contains(lower, kw) {
			return 0, false
		}
	}
	sm := m.waitRe.FindStringSubmatch(lower)
	if sm == nil {
		return 0, false
	}
	secs, err := strconv.ParseInt(sm[1], 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return maxWait, true
	}
	if err != nil || secs < 0 {
		return 0, false
	}
	// Значения за пределами time.Duration ограничиваются сверху.
	if secs > int64(maxWait/time.Second) {
		return maxWait, true
	}
	return time.Duration(secs) * time.Second, true
}

// maxWait — наибольшая представимая пауза.
const maxWait = time.Duration(math.MaxInt64)

// mentions проверяет, что идентификатор стоит после метки целиком,
// а не как префикс более длинного числа.
func (m *Matcher) mentions(clean, identifier string) bool {
	if identifier == "" {
		return false
	}
	for _, sm := range m.idRe.FindAllStringSubmatch(clean, -1) {
		if sm[1] == identifier {
			return true
		}
	}
	return false
}

func (m *Matcher) confirmed(clean string) bool {
	for _, tok := range m.confirmer {
		if tok != "" && strings.Contains(clean, tok) {
			return true
		}
	}
	return false
}
