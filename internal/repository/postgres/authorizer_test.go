package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/analytics-import/internal/api"
)

func newMockAuthorizer(t *testing.T) (*APIKeyAuthorizer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPIKeyAuthorizer(db), mock
}

func hashOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TestAuthorize_ResolvesRole(t *testing.T) {
	auth, mock := newMockAuthorizer(t)

	mock.ExpectQuery(`SELECT role FROM site_api_keys`).
		WithArgs(hashOf("token-1"), "site-001").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

	role, err := auth.Authorize(context.Background(), "token-1", "site-001")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if role != api.RoleAdmin {
		t.Errorf("expected admin, got %s", role)
	}
}

func TestAuthorize_UnknownToken(t *testing.T) {
	auth, mock := newMockAuthorizer(t)

	mock.ExpectQuery(`SELECT role FROM site_api_keys`).
		WithArgs(hashOf("bogus"), "site-001").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM site_api_keys`).
		WithArgs(hashOf("bogus")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := auth.Authorize(context.Background(), "bogus", "site-001")
	if !errors.Is(err, api.ErrBadToken) {
		t.Errorf("expected ErrBadToken, got %v", err)
	}
}

func TestAuthorize_ValidTokenWrongSite(t *testing.T) {
	auth, mock := newMockAuthorizer(t)

	mock.ExpectQuery(`SELECT role FROM site_api_keys`).
		WithArgs(hashOf("token-1"), "site-other").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM site_api_keys`).
		WithArgs(hashOf("token-1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := auth.Authorize(context.Background(), "token-1", "site-other")
	if !errors.Is(err, api.ErrNoAccess) {
		t.Errorf("expected ErrNoAccess, got %v", err)
	}
}

func TestAuthorize_EmptyToken(t *testing.T) {
	auth, _ := newMockAuthorizer(t)

	_, err := auth.Authorize(context.Background(), "", "site-001")
	if !errors.Is(err, api.ErrBadToken) {
		t.Errorf("expected ErrBadToken, got %v", err)
	}
}
