package directory

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func TestResolveUserIDFromOwnerID(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)
	q := regexp.QuoteMeta("SELECT owner_user_id FROM partners WHERE id = $1")

	mock.ExpectQuery(q).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_user_id"}).AddRow("u42"))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	id, err := repo.ResolveUserIDFromOwnerID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "u42", id)

	id, err = repo.ResolveUserIDFromOwnerID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPushToken(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewRepository(conn)
	q := regexp.QuoteMeta("SELECT push_token FROM users WHERE id = $1")

	mock.ExpectQuery(q).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"push_token"}).AddRow("tok"))
	mock.ExpectQuery(q).WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"push_token"}).AddRow(nil))

	tok, err := repo.PushToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	tok, err = repo.PushToken(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenService(t *testing.T) {
	svc := NewTokenService("s3cret")

	tok, err := svc.IssueToken("u1", "p1", time.Hour)
	require.NoError(t, err)

	uid, pid, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "p1", pid)

	_, _, err = NewTokenService("other").ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := svc.IssueToken("u1", "", -time.Minute)
	require.NoError(t, err)
	_, _, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegisterPushToken(t *testing.T) {
	conn, mock := newMock(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := NewHandler(NewRepository(conn), logger)

	r := chi.NewRouter()
	r.Put("/api/users/{userID}/push-token", h.RegisterPushToken)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, push_token)")).
		WithArgs("u1", "ExponentPushToken[x]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/push-token", strings.NewReader(`{"token":"ExponentPushToken[x]"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/users/u1/push-token", strings.NewReader(`{"token":"  "}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}
