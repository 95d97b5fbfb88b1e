package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"formcore/internal/entitymodel/sqlbundle"
	"formcore/pkg/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, mock
}

func expectDDL(mock sqlmock.Sqlmock) {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func expectEmptyLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(selectUsers).WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at", "updated_at"}))
	mock.ExpectQuery(selectForms).WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "owner_id", "created_at", "updated_at"}))
	mock.ExpectQuery(selectFields).WillReturnRows(sqlmock.NewRows([]string{"id", "form_id", "label", "field_type", "options", "required", "position", "created_at", "updated_at"}))
	mock.ExpectQuery(selectResponses).WillReturnRows(sqlmock.NewRows([]string{"id", "form_id", "number", "submitted_at", "submitted_by", "created_at", "updated_at"}))
	mock.ExpectQuery(selectAnswers).WillReturnRows(sqlmock.NewRows([]string{"id", "response_id", "field_id", "value", "created_at", "updated_at"}))
}

func TestNewStoreAppliesDDLAndLoadsTables(t *testing.T) {
	_, mock := newMock(t)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	expectDDL(mock)
	mock.ExpectQuery(selectUsers).WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at", "updated_at"}).
		AddRow("u1", "ada", "ada@example.com", "hash", ts, ts))
	mock.ExpectQuery(selectForms).WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "owner_id", "created_at", "updated_at"}).
		AddRow("f1", "Survey", "", "u1", ts, ts))
	mock.ExpectQuery(selectFields).WillReturnRows(sqlmock.NewRows([]string{"id", "form_id", "label", "field_type", "options", "required", "position", "created_at", "updated_at"}).
		AddRow("fld1", "f1", "Color", "radio", "red, blue", true, 1, ts, ts))
	mock.ExpectQuery(selectResponses).WillReturnRows(sqlmock.NewRows([]string{"id", "form_id", "number", "submitted_at", "submitted_by", "created_at", "updated_at"}).
		AddRow("r1", "f1", 1, ts, "", ts, ts))
	mock.ExpectQuery(selectAnswers).WillReturnRows(sqlmock.NewRows([]string{"id", "response_id", "field_id", "value", "created_at", "updated_at"}).
		AddRow("a1", "r1", "fld1", "red", ts, ts))

	store, err := NewStore("", domain.NewRulesEngine())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		form, ok := v.FindForm("f1")
		require.True(t, ok)
		assert.Equal(t, "u1", form.OwnerID)
		fields := v.ListFieldsByForm("f1")
		require.Len(t, fields, 1)
		assert.Equal(t, domain.FieldRadio, fields[0].Type)
		assert.Equal(t, []string{"red", "blue"}, fields[0].Options())
		assert.Len(t, v.ListAnswersForResponses([]string{"r1"}), 1)
		return nil
	}))
}

func TestRunInTransactionWritesNormalizedRows(t *testing.T) {
	_, mock := newMock(t)
	expectDDL(mock)
	expectEmptyLoad(mock)

	store, err := NewStore("postgres://example", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, stmt := range clearStatements {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(`INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`).
		WithArgs("u1", "ada", "ada@example.com", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO forms (id, title, description, owner_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`).
		WithArgs("f1", "Survey", "about you", "u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateUser(domain.User{Base: domain.Base{ID: "u1"}, Username: "ada", Email: "ada@example.com"}); err != nil {
			return err
		}
		_, err := tx.CreateForm(domain.Form{Base: domain.Base{ID: "f1"}, Title: "Survey", Description: "about you", OwnerID: "u1"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnWriteFailure(t *testing.T) {
	_, mock := newMock(t)
	expectDDL(mock)
	expectEmptyLoad(mock)

	store, err := NewStore("", nil)
	require.NoError(t, err)

	boom := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec(clearStatements[0]).WillReturnError(boom)
	mock.ExpectRollback()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Username: "ada", Email: "ada@example.com"})
		return err
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		_, ok := v.FindUserByUsername("ada")
		assert.False(t, ok)
		return nil
	}))
}

func TestRunInTransactionSkipsWriteWhenFnFails(t *testing.T) {
	_, mock := newMock(t)
	expectDDL(mock)
	expectEmptyLoad(mock)

	store, err := NewStore("", nil)
	require.NoError(t, err)

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateForm(domain.Form{Title: "orphan", OwnerID: "missing"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreReportsDDLFailure(t *testing.T) {
	_, mock := newMock(t)
	stmts := sqlbundle.SplitStatements(sqlbundle.Postgres())
	mock.ExpectExec(stmts[0]).WillReturnError(errors.New("permission denied for schema"))

	_, err := NewStore("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute ddl")
}

func TestNewStoreReportsOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	defer restore()

	_, err := NewStore("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
}
