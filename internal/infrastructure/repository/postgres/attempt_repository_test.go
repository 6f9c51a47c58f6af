package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*AttemptRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewAttemptRepository(db), mock, func() { _ = db.Close() }
}

func TestIncrementAttemptReturnsCounter(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("INSERT INTO processing_attempts").
		WithArgs("e1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

	got, err := repo.IncrementAttempt(context.Background(), "e1")
	if err != nil {
		t.Fatalf("IncrementAttempt() error = %v", err)
	}
	if got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementAttemptErrorIsTemporary(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("INSERT INTO processing_attempts").
		WithArgs("e1", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.IncrementAttempt(context.Background(), "e1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestAttemptCountMissingIsZero(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT attempts FROM processing_attempts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.AttemptCount(context.Background(), "missing")
	if err != nil {
		t.Fatalf("AttemptCount() error = %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneReturnsDeletedRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM processing_attempts").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.Prune(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 pruned rows, got %d", n)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS processing_attempts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
