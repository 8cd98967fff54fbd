package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/storage"
)

// BootstrapMode selects how the single boss is designated.
type BootstrapMode string

const (
	// ModeFirstRegistration makes the first registered account the boss,
	// guarded by an atomic claim on the bootstrap row.
	ModeFirstRegistration BootstrapMode = "first-registration"

	// ModeExplicit never promotes on registration; the boss is seeded by
	// "tasked bootstrap apply".
	ModeExplicit BootstrapMode = "explicit"
)

// ParseBootstrapMode parses a configured bootstrap mode.
func ParseBootstrapMode(s string) (BootstrapMode, error) {
	switch m := BootstrapMode(s); m {
	case ModeFirstRegistration, ModeExplicit:
		return m, nil
	default:
		return "", errors.NewValidation("bootstrap.mode",
			fmt.Sprintf("must be %q or %q", ModeFirstRegistration, ModeExplicit))
	}
}

// Field limits for registration.
const (
	maxNameLength  = 255
	maxPhoneLength = 20
)

// RegisterInput is a registration request.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	Address     string
	Age         *int
	DateOfBirth string // YYYY-MM-DD
}

// Validate checks the registration fields and returns the first problem.
func (in RegisterInput) Validate() error {
	if errs := in.ValidationErrors(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidationErrors checks every field and returns all problems keyed by field.
func (in RegisterInput) ValidationErrors() []*errors.ErrValidation {
	var out []*errors.ErrValidation
	for _, check := range profileChecks(in) {
		if err := check(); err != nil {
			out = append(out, err)
		}
	}
	return out
}

func profileChecks(in RegisterInput) []func() *errors.ErrValidation {
	maxLen := func(field, value string, n int) func() *errors.ErrValidation {
		return func() *errors.ErrValidation {
			if utf8.RuneCountInString(value) > n {
				return errors.NewValidation(field, fmt.Sprintf("must not be longer than %d characters", n))
			}
			return nil
		}
	}

	return []func() *errors.ErrValidation{
		func() *errors.ErrValidation {
			if strings.TrimSpace(in.Username) == "" {
				return errors.NewValidation("username", "is required")
			}
			return nil
		},
		maxLen("username", in.Username, maxNameLength),
		func() *errors.ErrValidation {
			if len(in.Password) < auth.MinPasswordLength {
				return errors.NewValidation("password",
					fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
			}
			return nil
		},
		func() *errors.ErrValidation {
			if strings.TrimSpace(in.Email) == "" {
				return errors.NewValidation("email", "is required")
			}
			addr, err := mail.ParseAddress(in.Email)
			if err != nil || addr.Address != in.Email {
				return errors.NewValidation("email", "must be a valid email address")
			}
			return nil
		},
		maxLen("email", in.Email, maxNameLength),
		maxLen("firstName", in.FirstName, maxNameLength),
		maxLen("lastName", in.LastName, maxNameLength),
		maxLen("phone", in.Phone, maxPhoneLength),
		maxLen("address", in.Address, maxNameLength),
		func() *errors.ErrValidation {
			if in.Age != nil && *in.Age < 0 {
				return errors.NewValidation("age", "must be at least 0")
			}
			return nil
		},
		func() *errors.ErrValidation {
			if in.DateOfBirth == "" {
				return nil
			}
			if _, err := time.Parse(time.DateOnly, in.DateOfBirth); err != nil {
				return errors.NewValidation("dateOfBirth", "must match the format YYYY-MM-DD")
			}
			return nil
		},
	}
}

// Session is an issued bearer token and the user it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *auth.User
}

// TokenManager issues and revokes bearer tokens.
type TokenManager interface {
	auth.Authenticator
	Issue(user *auth.User) (string, *auth.Claims, error)
	Revoke(claims *auth.Claims)
	RevokeAll(userID int64)
}

// AccountService implements registration, login and logout.
type AccountService struct {
	repo   storage.Repository
	tokens TokenManager
	mode   BootstrapMode
}

// NewAccountService creates an account service.
func NewAccountService(repo storage.Repository, tokens TokenManager, mode BootstrapMode) *AccountService {
	if mode == "" {
		mode = ModeFirstRegistration
	}
	return &AccountService{repo: repo, tokens: tokens, mode: mode}
}

// Mode returns the configured bootstrap mode.
func (s *AccountService) Mode() BootstrapMode {
	return s.mode
}

// Register creates an account and signs it in. In first-registration mode
// the account becomes the boss if no boss exists yet.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	claim := storage.ClaimNone
	if s.mode == ModeFirstRegistration {
		claim = storage.ClaimIfUnclaimed
	}

	user := &auth.User{
		Username:    in.Username,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		Address:     in.Address,
		Age:         in.Age,
		DateOfBirth: in.DateOfBirth,
	}
	if err := s.repo.CreateUser(ctx, user, hash, claim); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login verifies credentials and signs the user in. Tokens from earlier
// logins stop working.
func (s *AccountService) Login(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.NewValidation("username", "is required")
	}
	if password == "" {
		return nil, errors.NewValidation("password", "is required")
	}

	user, hash, err := s.repo.GetCredentials(ctx, username)
	var notFound *errors.ErrNotFound
	if stderrors.As(err, &notFound) {
		return nil, errors.NewAuthFailed("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, err
	}

	s.tokens.RevokeAll(user.ID)
	return s.issue(user)
}

// Logout revokes the presented token.
func (s *AccountService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return errors.NewAuthFailed("authentication required")
	}
	s.tokens.Revoke(claims)
	return nil
}

// Authenticate validates a bearer token and loads its user. The role is
// always read from storage, never from the token.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*auth.User, *auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repo.GetUser(ctx, claims.UserID)
	var notFound *errors.ErrNotFound
	if stderrors.As(err, &notFound) {
		return nil, nil, errors.NewAuthFailed("unknown user")
	}
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

func (s *AccountService) issue(user *auth.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}
