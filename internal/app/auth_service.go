package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/pkg/jwtutil"
	"gopherai-pdfqa/internal/repository"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8
	// bcrypt only accepts inputs up to 72 bytes.
	maxPasswordBytes = 72
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("a user with that username already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

// ValidationError lists every problem found in a signup form.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type AuthService struct {
	userRepo      UserStore
	revoker       TokenRevoker
	jwtSecret     string
	jwtExpiration time.Duration
	hashCost      int
}

type SignupInput struct {
	Username  string
	Password1 string
	Password2 string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

func NewAuthService(userRepo UserStore, revoker TokenRevoker, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		revoker:       revoker,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		hashCost:      bcrypt.DefaultCost,
	}
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)

	var problems []string
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		problems = append(problems, "Username is required.")
	case n > maxUsernameLength:
		problems = append(problems, fmt.Sprintf("Ensure the username has at most %d characters.", maxUsernameLength))
	}
	if input.Password1 == "" {
		problems = append(problems, "Password is required.")
	} else if input.Password1 != input.Password2 {
		problems = append(problems, "The two password fields didn't match.")
	} else if utf8.RuneCountInString(input.Password1) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
	} else if len(input.Password1) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("This password is too long. It must be at most %d bytes.", maxPasswordBytes))
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Messages: problems}
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password1), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameExists
		}
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Signin(ctx context.Context, input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return s.issue(user)
}

// Signout revokes token until its natural expiry. Tokens that no longer
// parse are already unusable and are ignored.
func (s *AuthService) Signout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Authenticate validates token, rejects revoked ones and confirms the account
// still exists. The returned username is the stored one.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*jwtutil.Claims, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", jwtutil.ErrInvalidToken)
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d failed: %w", claims.UserID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user", jwtutil.ErrInvalidToken)
	}
	claims.Username = user.Username
	return claims, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtExpiration),
		User:      user,
	}, nil
}
