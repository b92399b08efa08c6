package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/ignite/analytics-import/internal/api"
)

// APIKeyAuthorizer implements api.Authorizer against the site_api_keys
// table. Tokens are stored hashed; key issuance happens outside this
// service.
type APIKeyAuthorizer struct{ db *sql.DB }

// NewAPIKeyAuthorizer creates a Postgres-backed authorizer.
func NewAPIKeyAuthorizer(db *sql.DB) *APIKeyAuthorizer { return &APIKeyAuthorizer{db: db} }

func (a *APIKeyAuthorizer) Authorize(ctx context.Context, token, siteID string) (api.Role, error) {
	if token == "" {
		return "", api.ErrBadToken
	}

	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])

	var role string
	err := a.db.QueryRowContext(ctx, `
		SELECT role FROM site_api_keys
		WHERE token_hash = $1 AND site_id = $2 AND revoked_at IS NULL
	`, hash, siteID).Scan(&role)
	if err == sql.ErrNoRows {
		// Distinguish an unknown token from a valid token for another
		// site so the API can answer 401 vs 403.
		var n int
		if scanErr := a.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM site_api_keys
			WHERE token_hash = $1 AND revoked_at IS NULL
		`, hash).Scan(&n); scanErr != nil {
			return "", fmt.Errorf("authorize: %w", scanErr)
		}
		if n == 0 {
			return "", api.ErrBadToken
		}
		return "", api.ErrNoAccess
	}
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	return api.Role(role), nil
}
