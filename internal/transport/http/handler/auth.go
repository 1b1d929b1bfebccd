package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gopherai-pdfqa/internal/app"
	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/transport/http/middleware"
)

const (
	msgInvalidCredentials = "Invalid Credentials"
	msgSignupFailed       = "Sign up failed. Please try again."
)

type AuthService interface {
	Signup(ctx context.Context, input app.SignupInput) (*app.AuthResult, error)
	Signin(ctx context.Context, input app.LoginInput) (*app.AuthResult, error)
	Signout(ctx context.Context, token string) error
}

type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService AuthService
	cookie      CookieConfig
}

func NewAuthHandler(authService AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

func (h *AuthHandler) SignupPage(c *gin.Context) {
	if redirectIfSignedIn(c) {
		return
	}
	noCache(c)
	c.HTML(http.StatusOK, "signup.html", gin.H{})
}

func (h *AuthHandler) Signup(c *gin.Context) {
	if redirectIfSignedIn(c) {
		return
	}
	noCache(c)
	username := c.PostForm("username")

	result, err := h.authService.Signup(c.Request.Context(), app.SignupInput{
		Username:  username,
		Password1: c.PostForm("password1"),
		Password2: c.PostForm("password2"),
	})
	if err != nil {
		var verr *app.ValidationError
		var messages []string
		switch {
		case errors.As(err, &verr):
			messages = verr.Messages
		case errors.Is(err, app.ErrUsernameExists):
			messages = []string{"A user with that username already exists."}
		default:
			logger.New("auth").Error("signup failed", "err", err)
			messages = []string{msgSignupFailed}
		}
		c.HTML(http.StatusOK, "signup.html", gin.H{"errors": messages, "username": username})
		return
	}

	h.setSession(c, result)
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) SigninPage(c *gin.Context) {
	if redirectIfSignedIn(c) {
		return
	}
	noCache(c)
	c.HTML(http.StatusOK, "signin.html", gin.H{})
}

func (h *AuthHandler) Signin(c *gin.Context) {
	if redirectIfSignedIn(c) {
		return
	}
	noCache(c)
	username := c.PostForm("username")

	result, err := h.authService.Signin(c.Request.Context(), app.LoginInput{
		Username: username,
		Password: c.PostForm("password"),
	})
	if err != nil {
		if !errors.Is(err, app.ErrInvalidCredential) {
			logger.New("auth").Error("signin failed", "err", err)
		}
		c.HTML(http.StatusOK, "signin.html", gin.H{"error": msgInvalidCredentials, "username": username})
		return
	}

	h.setSession(c, result)
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) Signout(c *gin.Context) {
	if token := middleware.TokenFromRequest(c, h.cookie.Name); token != "" {
		if err := h.authService.Signout(c.Request.Context(), token); err != nil {
			logger.New("auth").Error("revoke token failed", "err", err)
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.Redirect(http.StatusFound, "/signin/")
}

func (h *AuthHandler) setSession(c *gin.Context, result *app.AuthResult) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, result.Token, maxAge, "/", "", h.cookie.Secure, true)
}

func redirectIfSignedIn(c *gin.Context) bool {
	if _, ok := middleware.UserID(c); ok {
		c.Redirect(http.StatusFound, "/")
		return true
	}
	return false
}

func noCache(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate, private")
}
