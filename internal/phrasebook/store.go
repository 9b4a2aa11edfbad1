package phrasebook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store публикует текущий скомпилированный набор формулировок.
// Чтение через Current() не блокируется перезагрузкой.
type Store struct {
	path    string
	current atomic.Pointer[Compiled]
	logger  *slog.Logger
}

// NewStore загружает формулировки из path (пустой path — встроенные по умолчанию).
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With(slog.String("component", "phrasebook")),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore создаёт хранилище с готовым набором (для тестов и встраивания).
func NewStaticStore(c *Compiled) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(c)
	return s
}

// Current возвращает действующий набор формулировок.
func (s *Store) Current() *Compiled {
	return s.current.Load()
}

// Reload перечитывает файл. При ошибке действующий набор не меняется.
func (s *Store) Reload() error {
	book := Default()
	if s.path != "" {
		var err error
		book, err = Load(s.path)
		if err != nil {
			return err
		}
	}
	compiled, err := book.Compile()
	if err != nil {
		return fmt.Errorf("phrasebook %q: %w", s.path, err)
	}
	s.current.Store(compiled)
	return nil
}

// Watch отслеживает изменения файла формулировок до отмены ctx.
// Следит за каталогом, чтобы переживать атомарную замену файла редактором.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("fsnotify add: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("Формулировки не перезагружены, действует прежний набор",
						slog.String("path", s.path),
						slog.String("error", err.Error()),
					)
					continue
				}
				s.logger.Info("Формулировки перезагружены", slog.String("path", s.path))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Ошибка наблюдения за файлом формулировок",
					slog.String("error", err.Error()),
				)
			}
		}
	}()
	return nil
}
