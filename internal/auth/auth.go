package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredential      = errors.New("no credential attached")
	ErrCredentialExpired = errors.New("credential expired")
	ErrMissingBearer     = errors.New("missing bearer token")
	ErrInvalidToken      = errors.New("invalid token")
)

// Provider supplies the bearer credential attached to every backend call.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, typically from INTERVIEW_TOKEN.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	return check(strings.TrimSpace(string(s)), time.Now())
}

// File reads the token from a file and re-reads it when the file changes,
// so a token refreshed by another tool is picked up without a restart.
type File struct {
	Path string

	mu      sync.Mutex
	modTime time.Time
	token   string
}

func NewFile(path string) *File { return &File{Path: path} }

func (f *File) Token(ctx context.Context) (string, error) {
	if f.Path == "" {
		return "", ErrNoCredential
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("stat token file: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" || !info.ModTime().Equal(f.modTime) {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		f.token = strings.TrimSpace(string(data))
		f.modTime = info.ModTime()
	}
	return check(f.token, time.Now())
}

// Relay holds the token of the most recent inbound request, refreshed by the
// control server on every call it handles for the session.
type Relay struct {
	mu    sync.RWMutex
	token string
}

func (r *Relay) Set(token string) {
	r.mu.Lock()
	r.token = strings.TrimSpace(token)
	r.mu.Unlock()
}

func (r *Relay) Token(ctx context.Context) (string, error) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	return check(token, time.Now())
}

// Chain returns the first provider that yields a credential.
type Chain []Provider

func (c Chain) Token(ctx context.Context) (string, error) {
	last := ErrNoCredential
	for _, p := range c {
		if p == nil {
			continue
		}
		token, err := p.Token(ctx)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			last = err
		}
	}
	return "", last
}

// ExpiresAt reports the exp claim of a JWT. Opaque tokens report ok=false.
// The signature is not verified; the backend does that.
func ExpiresAt(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func check(token string, now time.Time) (string, error) {
	if token == "" {
		return "", ErrNoCredential
	}
	if exp, ok := ExpiresAt(token); ok && !now.Before(exp) {
		return "", ErrCredentialExpired
	}
	return token, nil
}

// ExtractBearer returns the token of an "Authorization: Bearer" header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// Preview shortens a credential for logs.
func Preview(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..."
}
