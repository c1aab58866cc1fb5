// Package store persists the agent's cross-run memory in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const (
	sequencesTable = "ui_action_cache"
	lessonsTable   = "ui_lessons"
)

var (
	sequenceColumns = []string{"id", "scenario_id", "actions", "success", "recorded_at"}
	lessonColumns   = []string{"id", "scenario_id", "lesson", "recorded_at"}
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ui_action_cache (
    id          TEXT PRIMARY KEY,
    scenario_id TEXT NOT NULL,
    actions     JSONB NOT NULL,
    success     BOOLEAN NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS ui_lessons (
    id          TEXT PRIMARY KEY,
    scenario_id TEXT NOT NULL,
    lesson      TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);`

// Store is the PostgreSQL memory backend. Each save replaces the table
// contents inside one transaction, mirroring the whole-file rewrite of the
// file backend.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool for url, verifies it and makes sure the tables
// exist. The returned close func releases the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the memory tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create memory tables: %w", err)
	}
	return nil
}

// LoadSequences returns every cached action sequence, oldest first.
func (s *Store) LoadSequences(ctx context.Context) ([]schemas.CachedActionSequence, error) {
	query := `
        SELECT id, scenario_id, actions, success, recorded_at
        FROM ui_action_cache
        ORDER BY recorded_at ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query action cache: %w", err)
	}
	defer rows.Close()

	var out []schemas.CachedActionSequence
	for rows.Next() {
		var seq schemas.CachedActionSequence
		var actions []byte
		if err := rows.Scan(&seq.ID, &seq.ScenarioID, &actions, &seq.Success, &seq.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action cache row: %w", err)
		}
		if err := json.Unmarshal(actions, &seq.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions for sequence %s: %w", seq.ID, err)
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// SaveSequences replaces the action cache table with sequences.
func (s *Store) SaveSequences(ctx context.Context, sequences []schemas.CachedActionSequence) error {
	rows := make([][]interface{}, len(sequences))
	for i, seq := range sequences {
		actions, err := json.Marshal(seq.Actions)
		if err != nil {
			return fmt.Errorf("failed to encode actions for sequence %s: %w", seq.ID, err)
		}
		rows[i] = []interface{}{seq.ID, seq.ScenarioID, actions, seq.Success, seq.Timestamp.UTC()}
	}
	return s.replaceAll(ctx, sequencesTable, sequenceColumns, rows)
}

// LoadLessons returns every stored lesson, oldest first.
func (s *Store) LoadLessons(ctx context.Context) ([]schemas.LessonLearned, error) {
	query := `
        SELECT id, scenario_id, lesson, recorded_at
        FROM ui_lessons
        ORDER BY recorded_at ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var out []schemas.LessonLearned
	for rows.Next() {
		var l schemas.LessonLearned
		if err := rows.Scan(&l.ID, &l.ScenarioID, &l.Lesson, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// SaveLessons replaces the lessons table with lessons.
func (s *Store) SaveLessons(ctx context.Context, lessons []schemas.LessonLearned) error {
	rows := make([][]interface{}, len(lessons))
	for i, l := range lessons {
		rows[i] = []interface{}{l.ID, l.ScenarioID, l.Lesson, l.Timestamp.UTC()}
	}
	return s.replaceAll(ctx, lessonsTable, lessonColumns, rows)
}

func (s *Store) replaceAll(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	if len(rows) > 0 {
		copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy into %s: %w", table, err)
		}
		if int(copyCount) != len(rows) {
			return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Replaced memory table", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}
