package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	sq "github.com/Masterminds/squirrel"
	"github.com/devskill-org/menu-co2e/menu"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	tableDishes = "menu_dishes"
	tableDays   = "menu_days"
)

// undefinedTable is the PostgreSQL error code for a missing relation
const undefinedTable = "42P01"

// schema holds the DDL of each table. A table is only created by its own
// save, so a document that was never saved stays missing.
var schema = map[string]string{
	tableDishes: `CREATE TABLE IF NOT EXISTS ` + tableDishes + ` (
		id    TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		co2e  DOUBLE PRECISION NOT NULL
	)`,
	tableDays: `CREATE TABLE IF NOT EXISTS ` + tableDays + ` (
		position   INTEGER PRIMARY KEY,
		date       DATE NOT NULL,
		dishes     TEXT[] NOT NULL,
		cornflakes DOUBLE PRECISION NOT NULL,
		lingon     DOUBLE PRECISION NOT NULL
	)`,
}

// PostgresStore mirrors the cache documents into two tables. Each save
// replaces the whole table inside one transaction.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB, logger *zap.SugaredLogger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgresStore connects to PostgreSQL and verifies the connection
func OpenPostgresStore(ctx context.Context, connString string, logger *zap.SugaredLogger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewPostgresStore(db, logger), nil
}

// Close closes the underlying database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// builder returns a squirrel statement builder using $n placeholders
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// SaveDishes replaces the dishes table
func (s *PostgresStore) SaveDishes(ctx context.Context, dishes map[string]menu.DishRecord) error {
	insert := builder().Insert(tableDishes).Columns("id", "title", "co2e")
	for id, dish := range dishes {
		insert = insert.Values(id, dish.Title, dish.CO2e)
	}

	if err := s.replace(ctx, tableDishes, insert, len(dishes)); err != nil {
		return err
	}

	s.logger.Infof("Saved %d dishes to table %s", len(dishes), tableDishes)
	return nil
}

// SaveDays replaces the days table, keeping the slice order in position
func (s *PostgresStore) SaveDays(ctx context.Context, days []menu.DayRecord) error {
	insert := builder().Insert(tableDays).Columns("position", "date", "dishes", "cornflakes", "lingon")
	for i, day := range days {
		dishes := day.Dishes
		if dishes == nil {
			dishes = []string{}
		}
		insert = insert.Values(i, day.Date, pq.Array(dishes), day.Cornflakes, day.Lingon)
	}

	if err := s.replace(ctx, tableDays, insert, len(days)); err != nil {
		return err
	}

	s.logger.Infof("Saved %d days to table %s", len(days), tableDays)
	return nil
}

// replace deletes every row of table and runs insert in the same transaction
func (s *PostgresStore) replace(ctx context.Context, table string, insert sq.InsertBuilder, rows int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema[table]); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	deleteQuery, args, err := builder().Delete(table).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	if rows > 0 {
		insertQuery, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadDishes reads every dish row
func (s *PostgresStore) LoadDishes(ctx context.Context) (map[string]menu.DishRecord, error) {
	query, args, err := builder().Select("id", "title", "co2e").From(tableDishes).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(tableDishes, err)
	}
	defer rows.Close()

	dishes := make(map[string]menu.DishRecord)
	for rows.Next() {
		var dish menu.DishRecord
		if err := rows.Scan(&dish.ID, &dish.Title, &dish.CO2e); err != nil {
			return nil, fmt.Errorf("failed to scan dish: %w", err)
		}
		dishes[dish.ID] = dish
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dishes: %w", err)
	}

	return dishes, nil
}

// LoadDays reads every day row in saved order
func (s *PostgresStore) LoadDays(ctx context.Context) ([]menu.DayRecord, error) {
	query, args, err := builder().
		Select("to_char(date, 'YYYY-MM-DD')", "dishes", "cornflakes", "lingon").
		From(tableDays).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(tableDays, err)
	}
	defer rows.Close()

	days := []menu.DayRecord{}
	for rows.Next() {
		var day menu.DayRecord
		var dishes pq.StringArray
		if err := rows.Scan(&day.Date, &dishes, &day.Cornflakes, &day.Lingon); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		day.Dishes = []string(dishes)
		if day.Dishes == nil {
			day.Dishes = []string{}
		}
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating days: %w", err)
	}

	return days, nil
}

// queryError reports a table that was never saved as fs.ErrNotExist, the
// same way the file store reports a missing document.
func queryError(table string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("table %s: %w", table, fs.ErrNotExist)
	}
	return fmt.Errorf("failed to query %s: %w", table, err)
}
