package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ui_action_cache")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveSequences(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seqs := []schemas.CachedActionSequence{{
		ID:         "01HZY",
		ScenarioID: "login",
		Actions:    []schemas.CachedAction{{Type: schemas.ActionClick, Target: &schemas.Target{Name: "Sign in"}}},
		Success:    true,
		Timestamp:  ts,
	}}

	t.Run("replaces the table in one transaction without rollback errors", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ui_action_cache"`)).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mockPool.ExpectCopyFrom(pgx.Identifier{"ui_action_cache"}, sequenceColumns).
			WillReturnResult(1)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveSequences(ctx, seqs))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.Len(), "a committed transaction should not log rollback failures")
	})

	t.Run("empty list only clears", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ui_action_cache"`)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveSequences(ctx, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("copy failure rolls back", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		copyErr := errors.New("copy broke")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ui_action_cache"`)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"ui_action_cache"}, sequenceColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.SaveSequences(ctx, seqs)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLoadSequences(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(sequenceColumns).
		AddRow("a", "login", []byte(`[{"type":"click","target":{"name":"Sign in"}}]`), true, ts)
	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, scenario_id, actions, success, recorded_at FROM ui_action_cache ORDER BY recorded_at ASC;`)).
		WillReturnRows(rows)

	got, err := s.LoadSequences(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "login", got[0].ScenarioID)
	require.Len(t, got[0].Actions, 1)
	assert.Equal(t, "Sign in", got[0].Actions[0].Target.Name)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLessonsRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	t.Run("save", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ui_lessons"`)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"ui_lessons"}, lessonColumns).
			WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		err := s.SaveLessons(ctx, []schemas.LessonLearned{
			{ID: "1", ScenarioID: "checkout", Lesson: "Interactions that failed: \"Pay\"", Timestamp: ts},
			{ID: "2", ScenarioID: "checkout", Lesson: "Confusion observed: no progress for N steps", Timestamp: ts},
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(`DELETE FROM "ui_lessons"`)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"ui_lessons"}, lessonColumns).
			WillReturnResult(0)
		mockPool.ExpectRollback()

		err := s.SaveLessons(ctx, []schemas.LessonLearned{{ID: "1", ScenarioID: "x", Lesson: "l", Timestamp: ts}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("load", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rows := pgxmock.NewRows(lessonColumns).
			AddRow("1", "checkout", "Interactions that failed: \"Pay\"", ts)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, scenario_id, lesson, recorded_at FROM ui_lessons ORDER BY recorded_at ASC;`)).
			WillReturnRows(rows)

		got, err := s.LoadLessons(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "checkout", got[0].ScenarioID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
