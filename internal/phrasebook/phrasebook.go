// Пакет phrasebook — формулировки бота как внешний контракт.
// Маркеры разметки, указание подождать, фразы «нет данных», правила
// подтверждения, команды по типам справок и таблица полей ответа.
// Загружаются из YAML и компилируются в matcher.Matcher и parser.Parser.
package phrasebook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/matcher"
	"github.com/bigkaa/certgate/internal/parser"
)

// Book — набор формулировок в том виде, в каком он хранится в YAML.
type Book struct {
	EmphasisMarkers []string           `yaml:"emphasis_markers"`
	Wait            WaitPhrases        `yaml:"wait"`
	NotFound        []string           `yaml:"not_found"`
	Match           MatchPhrases       `yaml:"match"`
	Commands        map[string]string  `yaml:"commands"`
	Fields          []parser.FieldRule `yaml:"fields"`
}

// WaitPhrases — распознавание указания подождать.
type WaitPhrases struct {
	Keywords []string `yaml:"keywords"`
	Pattern  string   `yaml:"pattern"`
}

// MatchPhrases — распознавание подтверждённого ответа.
type MatchPhrases struct {
	IdentifierLabel string   `yaml:"identifier_label"`
	Separators      []string `yaml:"separators"`
	ConfirmTokens   []string `yaml:"confirm_tokens"`
}

// Default возвращает формулировки, которыми пользуется бот.
func Default() *Book {
	return &Book{
		EmphasisMarkers: parser.DefaultMarkers(),
		Wait: WaitPhrases{
			Keywords: []string{"espera", "segundos"},
			Pattern:  `(\d+)\s*segundos?`,
		},
		NotFound: []string{"[✖️] No se encontro informacion para los datos ingresados."},
		Match: MatchPhrases{
			IdentifierLabel: "DNI",
			Separators:      parser.DefaultSeparators(),
			ConfirmTokens:   []string{"CERTIFICADO", "ANTECEDENTES", "OLIMPO_BOT"},
		},
		Commands: map[string]string{
			string(model.KindPenal):    "/antpen",
			string(model.KindPolice):   "/antpol",
			string(model.KindJudicial): "/antjud",
		},
		Fields: parser.DefaultRules(),
	}
}

// Load читает YAML-файл поверх формулировок по умолчанию.
// Ключи, отсутствующие в файле, сохраняют значения по умолчанию.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	book := Default()
	if err := yaml.Unmarshal(data, book); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", path, err)
	}
	return book, nil
}

// Compiled — скомпилированный набор формулировок. Не изменяется после создания.
type Compiled struct {
	Matcher  *matcher.Matcher
	Parser   *parser.Parser
	commands map[model.Kind]string
}

// Command возвращает команду бота для типа справки.
func (c *Compiled) Command(kind model.Kind) (string, bool) {
	cmd, ok := c.commands[kind]
	return cmd, ok
}

// Compile проверяет и компилирует формулировки.
func (b *Book) Compile() (*Compiled, error) {
	m, err := matcher.New(matcher.Config{
		Markers:         b.EmphasisMarkers,
		WaitKeywords:    b.Wait.Keywords,
		WaitPattern:     b.Wait.Pattern,
		NotFound:        b.NotFound,
		IdentifierLabel: b.Match.IdentifierLabel,
		Separators:      b.Match.Separators,
		ConfirmTokens:   b.Match.ConfirmTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("matcher: %w", err)
	}

	p, err := parser.New(b.Fields, b.Match.Separators, b.EmphasisMarkers)
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}

	commands := make(map[model.Kind]string, len(model.Kinds))
	for name, cmd := range b.Commands {
		kind, err := model.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("commands: %w", err)
		}
		if cmd == "" {
			return nil, fmt.Errorf("commands: пустая команда для %q", name)
		}
		commands[kind] = cmd
	}
	for _, kind := range model.Kinds {
		if _, ok := commands[kind]; !ok {
			return nil, fmt.Errorf("commands: не задана команда для %q", kind)
		}
	}

	return &Compiled{Matcher: m, Parser: p, commands: commands}, nil
}
