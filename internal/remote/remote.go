// Package remote holds the clients of the off-device services the scanner
// talks to: identity, text recognition, alias lookup and transfers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Common errors
var (
	ErrNoToken       = errors.New("no auth token available")
	ErrUnauthorized  = errors.New("unauthorized after token refresh")
	ErrAliasNotFound = errors.New("alias not found")
)

// StatusError reports an unexpected HTTP status from a remote service
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// TokenSource supplies bearer tokens and forgets them when a service rejects them
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a fixed bearer token
type StaticToken string

// Token returns the token or ErrNoToken when it is empty
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// Invalidate does nothing; a static token cannot be refreshed
func (t StaticToken) Invalidate() {}

func defaultClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: timeout}
}

// sendAuthorized sends the request built by build with a bearer token.
// On 401/403 the token is invalidated and the request is sent exactly once more.
func sendAuthorized(ctx context.Context, client *http.Client, tokens TokenSource, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := tokens.Token(ctx)
		if err != nil {
			if errors.Is(err, ErrNoToken) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
		}

		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return resp, nil
		}

		drain(resp)
		if attempt > 0 {
			return nil, ErrUnauthorized
		}
		tokens.Invalidate()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return strings.TrimSpace(string(data))
}
