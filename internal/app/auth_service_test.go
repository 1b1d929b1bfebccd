package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gopherai-pdfqa/internal/pkg/jwtutil"
)

const testSecret = "test-secret"

func newTestAuth() (*AuthService, *fakeUsers, *fakeRevoker) {
	users := newFakeUsers()
	revoker := newFakeRevoker()
	s := NewAuthService(users, revoker, testSecret, time.Hour)
	s.hashCost = bcrypt.MinCost
	return s, users, revoker
}

func TestSignup_CreatesUserAndToken(t *testing.T) {
	s, users, _ := newTestAuth()

	res, err := s.Signup(context.Background(), SignupInput{Username: " alice ", Password1: "correct horse", Password2: "correct horse"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if res.User.Username != "alice" || res.User.ID == 0 {
		t.Fatalf("user = %+v", res.User)
	}
	stored, _ := users.GetByUsername(context.Background(), "alice")
	if stored == nil || stored.PasswordHash == "correct horse" {
		t.Fatal("password not hashed or user not stored")
	}
	claims, err := jwtutil.ParseToken(testSecret, res.Token)
	if err != nil || claims.UserID != res.User.ID {
		t.Fatalf("token claims = %+v, %v", claims, err)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input SignupInput
		want  string
	}{
		{"empty username", SignupInput{Username: "  ", Password1: "password1", Password2: "password1"}, "Username is required."},
		{"long username", SignupInput{Username: strings.Repeat("u", 151), Password1: "password1", Password2: "password1"}, "at most 150"},
		{"mismatch", SignupInput{Username: "bob", Password1: "password1", Password2: "password2"}, "didn't match"},
		{"short", SignupInput{Username: "bob", Password1: "short", Password2: "short"}, "too short"},
		{"missing password", SignupInput{Username: "bob"}, "Password is required."},
		{"password over bcrypt limit", SignupInput{Username: "bob", Password1: strings.Repeat("p", 80), Password2: strings.Repeat("p", 80)}, "too long"},
		{"multibyte password over bcrypt limit", SignupInput{Username: "bob", Password1: strings.Repeat("é", 40), Password2: strings.Repeat("é", 40)}, "at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestAuth()
			_, err := s.Signup(context.Background(), tt.input)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err %T is not a *ValidationError", err)
			}
			if !strings.Contains(verr.Error(), tt.want) {
				t.Fatalf("messages = %q, want to contain %q", verr.Messages, tt.want)
			}
		})
	}
}

func TestSignup_UsernameTaken(t *testing.T) {
	s, _, _ := newTestAuth()
	ctx := context.Background()
	in := SignupInput{Username: "carol", Password1: "password1", Password2: "password1"}

	if _, err := s.Signup(ctx, in); err != nil {
		t.Fatalf("first Signup: %v", err)
	}
	if _, err := s.Signup(ctx, in); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("second Signup err = %v, want ErrUsernameExists", err)
	}
}

func TestSignin(t *testing.T) {
	s, _, _ := newTestAuth()
	ctx := context.Background()
	if _, err := s.Signup(ctx, SignupInput{Username: "dave", Password1: "password1", Password2: "password1"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if _, err := s.Signin(ctx, LoginInput{Username: "dave", Password: "password1"}); err != nil {
		t.Fatalf("Signin: %v", err)
	}
	for _, in := range []LoginInput{
		{Username: "dave", Password: "wrong-password"},
		{Username: "nobody", Password: "password1"},
		{Username: "", Password: ""},
	} {
		if _, err := s.Signin(ctx, in); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("Signin(%+v) err = %v, want ErrInvalidCredential", in, err)
		}
	}
}

func TestSignout_RevokesToken(t *testing.T) {
	s, _, revoker := newTestAuth()
	ctx := context.Background()
	res, err := s.Signup(ctx, SignupInput{Username: "erin", Password1: "password1", Password2: "password1"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if _, err := s.Authenticate(ctx, res.Token); err != nil {
		t.Fatalf("Authenticate before signout: %v", err)
	}
	if err := s.Signout(ctx, res.Token); err != nil {
		t.Fatalf("Signout: %v", err)
	}
	if len(revoker.revoked) != 1 {
		t.Fatalf("revoked = %v", revoker.revoked)
	}
	if _, err := s.Authenticate(ctx, res.Token); !errors.Is(err, jwtutil.ErrInvalidToken) {
		t.Fatalf("Authenticate after signout err = %v, want ErrInvalidToken", err)
	}

	if err := s.Signout(ctx, "garbage"); err != nil {
		t.Fatalf("Signout(garbage) = %v, want nil", err)
	}
}

func TestAuthenticate_FailsClosedWhenBlocklistDown(t *testing.T) {
	s, _, revoker := newTestAuth()
	ctx := context.Background()
	res, _ := s.Signup(ctx, SignupInput{Username: "frank", Password1: "password1", Password2: "password1"})

	revoker.err = errors.New("redis down")
	if _, err := s.Authenticate(ctx, res.Token); err == nil {
		t.Fatal("expected error when revocation state is unknown")
	}
}

func TestSignup_LongestAcceptedPassword(t *testing.T) {
	s, users, _ := newTestAuth()
	pw := strings.Repeat("p", 72)
	if _, err := s.Signup(context.Background(), SignupInput{Username: "gina", Password1: pw, Password2: pw}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := s.Signin(context.Background(), LoginInput{Username: "gina", Password: pw}); err != nil {
		t.Fatalf("Signin: %v", err)
	}
	if len(users.byName) != 1 {
		t.Fatalf("users = %d, want 1", len(users.byName))
	}
}

func TestAuthenticate_RejectsDeletedUser(t *testing.T) {
	s, users, _ := newTestAuth()
	ctx := context.Background()
	res, err := s.Signup(ctx, SignupInput{Username: "hank", Password1: "password1", Password2: "password1"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	claims, err := s.Authenticate(ctx, res.Token)
	if err != nil || claims.Username != "hank" {
		t.Fatalf("Authenticate = %+v, %v", claims, err)
	}

	users.mu.Lock()
	delete(users.byName, "hank")
	users.mu.Unlock()

	if _, err := s.Authenticate(ctx, res.Token); !errors.Is(err, jwtutil.ErrInvalidToken) {
		t.Fatalf("Authenticate after delete err = %v, want ErrInvalidToken", err)
	}
}
