package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/models"
)

func TestTransactionManager_Begin(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and routes queries through the tx context", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewDeletionRemarkRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deletion_remarks")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := tm.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.Insert(tx.Context(), models.NewDeletionRemark(models.EntityTypeUser, "u-2", "banned", "admin-1")))
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repository bound with WithTx joins the transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewDeletionRemarkRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deletion_remarks")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		tx, err := tm.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.WithTx(tx).Insert(ctx, models.NewDeletionRemark(models.EntityTypeBid, "b-1", "withdrawn", "admin-1")))
		require.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin().WillReturnError(errors.New("no connections"))

		tx, err := tm.Begin(ctx)
		assert.Nil(t, tx)
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}

func TestTransaction_RollbackAfterCommit(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS deletion_remarks")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	schema := remarksSchema()
	assert.Contains(t, schema, "'milestone'")
	assert.Contains(t, schema, "reason VARCHAR(500)")
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	require.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, db.HealthCheck(context.Background()), "database health check failed")
}
