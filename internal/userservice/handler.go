package userservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sushihentaime/teamblog/internal/common"
)

var (
	ErrAuthenticationFailure = fmt.Errorf("unauthorized access")
)

func NewUserService(db *sql.DB, mb common.MessageProducer, c *common.Cache) *UserService {
	return &UserService{
		m:  NewUserModel(db),
		t:  NewTokenModel(db),
		mb: mb,
		c:  c,
	}
}

// CreateUser creates a new user account and publish an user.created event.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (*string, error) {
	v := common.NewValidator()
	validateUsername(v, username)
	validateEmail(v, email)
	validatePassword(v, password)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	u := User{
		Username: username,
		Email:    email,
		Password: Password{Plain: password},
	}

	err := u.Password.set(u.Password.Plain)
	if err != nil {
		return nil, err
	}

	err = s.m.insert(ctx, &u)
	if err != nil {
		return nil, err
	}

	token, err := s.t.createToken(ctx, u.ID, ActivationTokenTime, TokenScopeActivate)
	if err != nil {
		return nil, err
	}

	emailData, err := json.Marshal(UserCreatedMessage{Email: u.Email, Token: token.Plain})
	if err != nil {
		return nil, err
	}

	err = s.mb.Publish(ctx, emailData, common.UserCreatedKey, common.UserExchange)
	if err != nil {
		return nil, err
	}

	return &token.Plain, nil
}

// ActivateUser activates a user account using the token, deletes the token and grants the blog:write permission.
func (s *UserService) ActivateUser(ctx context.Context, token string) error {
	v := common.NewValidator()
	ValidateToken(v, token)
	if !v.Valid() {
		return v.ValidationError()
	}

	hash := hashToken(token)

	user, err := s.t.getUser(ctx, TokenScopeActivate, hash)
	if err != nil {
		return err
	}

	tx, err := s.m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	err = s.m.activate(tx, ctx, user.ID, user.Version)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	err = s.t.delete(tx, ctx, user.ID, TokenScopeActivate)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	err = s.m.addPermissions(tx, ctx, user.ID, PermissionWriteBlog)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// LoginUser logs in a user and returns a fresh access token and refresh token.
func (s *UserService) LoginUser(ctx context.Context, username, password, ipAddress, userAgent string) (*AuthToken, error) {
	v := common.NewValidator()
	validateUsername(v, username)
	v.Check(password != "", "password", "must be provided")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	user, err := s.m.getByUsername(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, ErrAuthenticationFailure
		default:
			return nil, err
		}
	}

	ok, err := user.Password.matches(password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuthenticationFailure
	}

	tx, err := s.m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	authToken, err := s.t.createAuthToken(tx, ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return authToken, nil
}

// GetUserByAccessToken resolves the owner of token. Results are cached for a
// short while since every authenticated request goes through here.
func (s *UserService) GetUserByAccessToken(ctx context.Context, token string) (*User, error) {
	v := common.NewValidator()
	ValidateToken(v, token)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	hash := hashToken(token)
	key := common.CacheKeyUserByAccessToken(hash)

	if s.c != nil {
		if cached, ok := s.c.Get(key); ok {
			if u, ok := cached.(*User); ok {
				return u, nil
			}
		}
	}

	u, err := s.m.getByAccessToken(ctx, hash)
	if err != nil {
		return nil, err
	}

	if s.c != nil {
		s.c.Set(key, u, userCacheTTL)
	}

	return u, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*User, error) {
	v := common.NewValidator()
	v.CheckID(id, "user_id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	return s.m.getByID(ctx, id)
}

// GetEmails returns the addresses of the activated users in ids.
func (s *UserService) GetEmails(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.m.getEmails(ctx, ids)
}

func (s *UserService) LogoutUser(ctx context.Context, userID string) error {
	v := common.NewValidator()
	v.CheckID(userID, "user_id")
	if !v.Valid() {
		return v.ValidationError()
	}

	tx, err := s.m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	hashes, err := s.t.deleteAuthTokens(tx, ctx, userID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if s.c != nil {
		for _, h := range hashes {
			s.c.Delete(common.CacheKeyUserByAccessToken(h))
		}
	}

	return nil
}
