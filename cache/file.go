// Package cache implements the menu.Store backends: a pair of JSON documents
// on local disk and a PostgreSQL mirror of the same two collections.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/devskill-org/menu-co2e/menu"
	"go.uber.org/zap"
)

const (
	// DishesFile holds a JSON object of dish records keyed by id.
	DishesFile = "dishes.json"
	// DaysFile holds a JSON array of day records.
	DaysFile = "days.json"
)

// FileStore keeps the cache documents in a directory. Writes overwrite the
// previous documents in place.
type FileStore struct {
	dir    string
	logger *zap.SugaredLogger
}

// NewFileStore creates a FileStore rooted at dir
func NewFileStore(dir string, logger *zap.SugaredLogger) *FileStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Path returns the location of a cache document
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveDishes writes the dishes document
func (s *FileStore) SaveDishes(_ context.Context, dishes map[string]menu.DishRecord) error {
	if err := s.write(DishesFile, dishes); err != nil {
		return err
	}
	s.logger.Infof("Saved dishes to %s", s.Path(DishesFile))
	return nil
}

// SaveDays writes the days document
func (s *FileStore) SaveDays(_ context.Context, days []menu.DayRecord) error {
	if err := s.write(DaysFile, days); err != nil {
		return err
	}
	s.logger.Infof("Saved days to %s", s.Path(DaysFile))
	return nil
}

// LoadDishes reads the dishes document
func (s *FileStore) LoadDishes(_ context.Context) (map[string]menu.DishRecord, error) {
	var dishes map[string]menu.DishRecord
	if err := s.read(DishesFile, &dishes); err != nil {
		return nil, err
	}
	if dishes == nil {
		dishes = map[string]menu.DishRecord{}
	}
	return dishes, nil
}

// LoadDays reads the days document
func (s *FileStore) LoadDays(_ context.Context) ([]menu.DayRecord, error) {
	var days []menu.DayRecord
	if err := s.read(DaysFile, &days); err != nil {
		return nil, err
	}
	if days == nil {
		days = []menu.DayRecord{}
	}
	return days, nil
}

func (s *FileStore) write(name string, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if err := os.WriteFile(s.Path(name), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return nil
}

func (s *FileStore) read(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}

	return nil
}
