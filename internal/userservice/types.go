package userservice

import (
	"database/sql"
	"time"

	"github.com/sushihentaime/teamblog/internal/common"
)

type tokenScope string

type Permission string
type Permissions []Permission

const (
	TokenScopeActivate tokenScope = "token:activate"

	ActivationTokenTime time.Duration = 3 * 24 * time.Hour
	AccessTokenTime     time.Duration = 7 * 24 * time.Hour
	RefreshTokenTime    time.Duration = 30 * 24 * time.Hour

	// userCacheTTL bounds how long a resolved access token is trusted without
	// going back to the database.
	userCacheTTL time.Duration = 5 * time.Minute

	PermissionWriteBlog Permission = "blog:write"

	DefaultDepartmentName = "General"
)

var (
	AnonymousUser = User{}
)

type UserService struct {
	m  *UserModel
	t  *TokenModel
	mb common.MessageProducer
	c  *common.Cache
}

type UserModel struct {
	db *sql.DB
}

type TokenModel struct {
	db *sql.DB
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Password     Password  `json:"-"`
	Activated    bool      `json:"activated"`
	IsAdmin      bool      `json:"is_admin"`
	DepartmentID *string   `json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`

	Permissions Permissions `json:"permissions"`
}

type Password struct {
	Plain string `json:"-"`
	hash  []byte `json:"-"`
}

type Token struct {
	Plain  string     `json:"token"`
	Hash   []byte     `json:"-"`
	UserID string     `json:"-"`
	Expiry time.Time  `json:"expiry"`
	Scope  tokenScope `json:"-"`
}

// Authentication Token
type AuthToken struct {
	AccessTokenPlain   string    `json:"access_token"`
	AccessTokenHash    []byte    `json:"-"`
	RefreshTokenPlain  string    `json:"refresh_token"`
	RefreshTokenHash   []byte    `json:"-"`
	UserID             string    `json:"user_id"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
	IPAddress          string    `json:"-"`
	UserAgent          string    `json:"-"`
}

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCreatedMessage is published on user.created for the activation mail.
type UserCreatedMessage struct {
	Email string `json:"email"`
	Token string `json:"token"`
}
