package userservice

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base32"
	"errors"
	"time"
)

func NewTokenModel(db *sql.DB) *TokenModel {
	return &TokenModel{db: db}
}

func hashToken(token string) []byte {
	hash := sha256.Sum256([]byte(token))
	return hash[:]
}

func newToken(userID string, ttl time.Duration, scope tokenScope) (*Token, error) {
	randomBytes := make([]byte, 16)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return nil, err
	}

	token := &Token{
		Plain:  base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes),
		UserID: userID,
		Expiry: time.Now().Add(ttl),
		Scope:  scope,
	}

	token.Hash = hashToken(token.Plain)

	return token, nil
}

func (m *TokenModel) insert(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO tokens (hash, user_id, expiry, scope_id)
		VALUES ($1, $2, $3, (SELECT id FROM token_scopes WHERE name = $4))`

	_, err := m.db.ExecContext(ctx, query, token.Hash, token.UserID, token.Expiry, string(token.Scope))
	return err
}

func (m *TokenModel) createToken(ctx context.Context, userID string, ttl time.Duration, scope tokenScope) (*Token, error) {
	token, err := newToken(userID, ttl, scope)
	if err != nil {
		return nil, err
	}

	err = m.insert(ctx, token)
	if err != nil {
		return nil, err
	}

	return token, nil
}

func (m *TokenModel) getUser(ctx context.Context, scope tokenScope, token []byte) (*User, error) {
	var user User

	query := `
		SELECT u.id, u.username, u.email, u.activated, u.version
		FROM users u
		INNER JOIN tokens t ON u.id = t.user_id
		INNER JOIN token_scopes s ON t.scope_id = s.id
		WHERE t.hash = $1 AND s.name = $2 AND t.expiry > $3`

	err := m.db.QueryRowContext(ctx, query, token, string(scope), time.Now()).Scan(&user.ID, &user.Username, &user.Email, &user.Activated, &user.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &user, nil
}

func (m *TokenModel) delete(tx *sql.Tx, ctx context.Context, userID string, scope tokenScope) error {
	query := `
		DELETE FROM tokens
		WHERE user_id = $1 AND scope_id = (SELECT id FROM token_scopes WHERE name = $2)`

	res, err := tx.ExecContext(ctx, query, userID, string(scope))
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (m *TokenModel) createAuthToken(tx *sql.Tx, ctx context.Context, userID string, ipAddress string, userAgent string) (*AuthToken, error) {
	accessToken, err := newToken(userID, AccessTokenTime, "")
	if err != nil {
		return nil, err
	}

	refreshToken, err := newToken(userID, RefreshTokenTime, "")
	if err != nil {
		return nil, err
	}

	authToken := &AuthToken{
		AccessTokenPlain:   accessToken.Plain,
		AccessTokenHash:    accessToken.Hash,
		RefreshTokenPlain:  refreshToken.Plain,
		RefreshTokenHash:   refreshToken.Hash,
		UserID:             userID,
		AccessTokenExpiry:  accessToken.Expiry,
		RefreshTokenExpiry: refreshToken.Expiry,
		IPAddress:          ipAddress,
		UserAgent:          userAgent,
	}

	err = m.insertAuthToken(tx, ctx, authToken)
	if err != nil {
		return nil, err
	}

	return authToken, nil
}

func (m *TokenModel) insertAuthToken(tx *sql.Tx, ctx context.Context, authToken *AuthToken) error {
	query := `
		INSERT INTO auth_tokens (access_token, refresh_token, user_id, access_token_expiry, refresh_token_expiry, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, query, authToken.AccessTokenHash, authToken.RefreshTokenHash, authToken.UserID, authToken.AccessTokenExpiry, authToken.RefreshTokenExpiry, authToken.IPAddress, authToken.UserAgent)
	return err
}

// deleteAuthTokens removes every session of userID and returns the access
// token hashes that were revoked.
func (m *TokenModel) deleteAuthTokens(tx *sql.Tx, ctx context.Context, userID string) ([][]byte, error) {
	query := `
		DELETE FROM auth_tokens
		WHERE user_id = $1
		RETURNING access_token`

	rows, err := tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes [][]byte
	for rows.Next() {
		var h []byte
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}

	return hashes, rows.Err()
}
