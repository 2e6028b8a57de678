// Package auth implements the browser-based login against the hosting control plane.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/hosting"
	"github.com/harshul/trellis/internal/retry"
	"go.uber.org/zap"
)

var (
	ErrTokenFetch    = errors.New("unable to fetch access token")
	ErrAccessDenied  = errors.New("access denied")
	ErrTokenValidate = errors.New("unable to validate token")
	ErrBrowser       = errors.New("unable to open the browser to authenticate")
)

// Defaults for the fetch and validate polls.
const (
	DefaultAttempts = 60
	DefaultInterval = 5 * time.Second
)

// TokenClient is the control-plane surface the login flow needs.
type TokenClient interface {
	FetchToken(ctx context.Context, requestID string) (hosting.Token, error)
	ValidateToken(ctx context.Context, token string) error
}

// Store persists the token between invocations.
type Store interface {
	Load() (config.Credentials, error)
	Save(config.Credentials) error
	Delete() error
}

// Token is an access token and the code shown in the browser at login.
type Token struct {
	Token string
	Code  string
}

// Result is the outcome of a successful login.
type Result struct {
	Token Token
	// Reused is set when a stored token was validated instead of a new one issued.
	Reused bool
}

// Flow logs the user in. Zero-valued fields fall back to sensible defaults.
type Flow struct {
	Client      TokenClient
	Store       Store
	WebURL      string
	OpenBrowser func(url string) error
	Clock       retry.Clock
	Policy      retry.Policy
	Notify      func(msg string)
	Status      func(msg string) (stop func())
	Logger      *zap.Logger
	// NewRequestID defaults to a dashless UUID.
	NewRequestID func() string
}

// Login reuses a stored token when one exists, otherwise sends the user through
// the browser and polls for the issued token. Either way the token is validated
// before it is trusted; a rejected token is deleted.
func (f *Flow) Login(ctx context.Context) (Result, error) {
	var tok Token
	reused := false

	creds, err := f.Store.Load()
	if err != nil {
		f.logger().Debug("reading stored token", zap.Error(err))
	}
	switch {
	case creds.Token != "" && !Expired(creds.Token, time.Now()):
		tok = Token{Token: creds.Token, Code: creds.Code}
		reused = true
	default:
		if creds.Token != "" {
			f.logger().Debug("stored token expired")
		}
		tok, err = f.browserLogin(ctx)
		if err != nil {
			return Result{}, err
		}
	}

	if err := f.validate(ctx, tok.Token); err != nil {
		return Result{}, err
	}

	if !reused {
		if err := f.Store.Save(config.Credentials{Token: tok.Token, Code: tok.Code}); err != nil {
			return Result{}, err
		}
	}
	return Result{Token: tok, Reused: reused}, nil
}

// Logout deletes the stored token.
func (f *Flow) Logout() error {
	return f.Store.Delete()
}

// LoginURL is the page the browser is sent to for requestID.
func LoginURL(webURL, requestID, code string) string {
	sep := "?"
	if strings.Contains(webURL, "?") {
		sep = "&"
	}
	return webURL + sep + "request-id=" + url.QueryEscape(requestID) + "&code=" + url.QueryEscape(code)
}

func (f *Flow) browserLogin(ctx context.Context) (Token, error) {
	requestID := f.requestID()
	f.notify(fmt.Sprintf("Opening %s ...", f.WebURL))
	if f.OpenBrowser != nil {
		if err := f.OpenBrowser(LoginURL(f.WebURL, requestID, "")); err != nil {
			return Token{}, fmt.Errorf("%w: %v", ErrBrowser, err)
		}
	}

	stop := f.status("Waiting for access token ...")
	defer stop()

	var tok Token
	_, err := f.policy().Do(ctx, f.clock(), func(int) (bool, error) {
		issued, err := f.Client.FetchToken(ctx, requestID)
		if err != nil {
			f.logger().Debug("fetch token", zap.Error(err))
			return false, nil
		}
		tok = Token{Token: issued.AccessToken, Code: issued.Code}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return Token{}, ErrTokenFetch
		}
		return Token{}, err
	}
	return tok, nil
}

func (f *Flow) validate(ctx context.Context, token string) error {
	stop := f.status("Validating access token ...")
	defer stop()

	_, err := f.policy().Do(ctx, f.clock(), func(int) (bool, error) {
		err := f.Client.ValidateToken(ctx, token)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, hosting.ErrInvalidToken):
			return false, retry.Permanent(err)
		default:
			f.logger().Debug("unable to validate token", zap.Error(err))
			return false, err
		}
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hosting.ErrInvalidToken):
		if derr := f.Store.Delete(); derr != nil {
			f.logger().Debug("deleting rejected token", zap.Error(derr))
		}
		return ErrAccessDenied
	case errors.Is(err, retry.ErrExhausted):
		return ErrTokenValidate
	default:
		return err
	}
}

// Expired reports whether token is a JWT whose exp claim is before now. Tokens
// that are not JWTs, or carry no expiry, are never considered expired.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

func (f *Flow) requestID() string {
	if f.NewRequestID != nil {
		return f.NewRequestID()
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (f *Flow) policy() retry.Policy {
	if f.Policy.MaxAttempts == 0 {
		return retry.Fixed(DefaultAttempts, DefaultInterval)
	}
	return f.Policy
}

func (f *Flow) clock() retry.Clock {
	if f.Clock == nil {
		return retry.RealClock()
	}
	return f.Clock
}

func (f *Flow) notify(msg string) {
	if f.Notify != nil {
		f.Notify(msg)
	}
}

func (f *Flow) status(msg string) func() {
	if f.Status == nil {
		return func() {}
	}
	return f.Status(msg)
}

func (f *Flow) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
