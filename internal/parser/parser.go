// Пакет parser — извлечение полей из текста ответа бота.
// Чистые функции без ввода-вывода: текст → набор полей.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// FieldRule — правило извлечения одного поля.
type FieldRule struct {
	// Key — ключ поля из словаря model.Field*
	Key string `yaml:"key"`
	// Label — метка в тексте ответа (DNI, NOMBRES, ...)
	Label string `yaml:"label"`
	// Numeric — значение состоит только из цифр
	Numeric bool `yaml:"numeric"`
}

// DefaultRules — таблица полей ответа бота.
func DefaultRules() []FieldRule {
	return []FieldRule{
		{Key: model.FieldIdentifier, Label: "DNI", Numeric: true},
		{Key: model.FieldGivenNames, Label: "NOMBRES"},
		{Key: model.FieldSurnames, Label: "APELLIDOS"},
		{Key: model.FieldGender, Label: "GENERO"},
		{Key: model.FieldAge, Label: "EDAD", Numeric: true},
	}
}

// DefaultSeparators — разделители между меткой и значением.
func DefaultSeparators() []string { return []string{"➾", "-", "="} }

// DefaultMarkers — маркеры форматирования, удаляемые перед разбором.
func DefaultMarkers() []string { return []string{"**", "`", "*"} }

type compiledRule struct {
	key string
	re  *regexp.Regexp
}

// Parser — извлекатель полей по таблице правил.
// После создания не изменяется и безопасен для конкурентного использования.
type Parser struct {
	rules   []compiledRule
	cleaner *strings.Replacer
}

// New компилирует таблицу правил.
func New(rules []FieldRule, separators, markers []string) (*Parser, error) {
	if len(separators) == 0 {
		return nil, errors.New("не задан ни один разделитель")
	}
	sep := SeparatorPattern(separators)

	p := &Parser{cleaner: NewCleaner(markers)}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Key == "" || r.Label == "" {
			return nil, fmt.Errorf("правило поля: пустой ключ или метка (%q/%q)", r.Key, r.Label)
		}
		if r.Key == model.FieldRecordKind {
			return nil, fmt.Errorf("ключ %q заполняется автоматически", r.Key)
		}
		if seen[r.Key] {
			return nil, fmt.Errorf("повторяющийся ключ поля %q", r.Key)
		}
		seen[r.Key] = true

		value := `([^\n\r]+)`
		if r.Numeric {
			value = `(\d+)`
		}
		// Метка должна начинаться на границе слова, значение — на той же строке.
		expr := `(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(r.Label) + `[ \t]*` + sep + `[ \t]*` + value
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("правило %q: %w", r.Key, err)
		}
		p.rules = append(p.rules, compiledRule{key: r.Key, re: re})
	}
	return p, nil
}

// MustDefault возвращает парсер со встроенной таблицей полей.
func MustDefault() *Parser {
	p, err := New(DefaultRules(), DefaultSeparators(), DefaultMarkers())
	if err != nil {
		panic(err)
	}
	return p
}

// Parse извлекает поля из текста ответа.
// Пустые и ненайденные значения опускаются. record_kind заполняется всегда
// меткой kindLabel без изменений.
func (p *Parser) Parse(text, kindLabel string) model.Fields {
	clean := p.cleaner.Replace(text)
	fields := make(model.Fields, len(p.rules)+1)
	for _, r := range p.rules {
		m := r.re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			fields[r.key] = v
		}
	}
	fields[model.FieldRecordKind] = kindLabel
	return fields
}

// SeparatorPattern возвращает регулярное выражение-альтернативу для разделителей.
func SeparatorPattern(separators []string) string {
	quoted := make([]string, 0, len(separators))
	for _, s := range separators {
		if s != "" {
			quoted = append(quoted, regexp.QuoteMeta(s))
		}
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}

// NewCleaner создаёт заменитель, удаляющий маркеры форматирования.
// Более длинные маркеры должны идти раньше коротких.
func NewCleaner(markers []string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(markers))
	for _, m := range markers {
		if m != "" {
			pairs = append(pairs, m, "")
		}
	}
	return strings.NewReplacer(pairs...)
}
