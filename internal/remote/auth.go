package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultTokenClaim carries the backend token inside the identity provider's access token
const DefaultTokenClaim = "http://cognito-proxy.ua.la/cognito_access_token"

// AuthConfig configures the password-grant login
type AuthConfig struct {
	URL        string
	ClientID   string
	Audience   string
	Username   string
	Password   string
	Scope      string
	Connection string
	Device     string
	Claim      string
	TTL        time.Duration
	Timeout    time.Duration
}

// PasswordGrant logs in with a resource-owner password grant and caches the
// backend token found in the access token for TTL.
type PasswordGrant struct {
	cfg    AuthConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewPasswordGrant creates a token source; client may be nil
func NewPasswordGrant(cfg AuthConfig, client *http.Client) *PasswordGrant {
	if cfg.Claim == "" {
		cfg.Claim = DefaultTokenClaim
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 25 * time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "openid profile email offline_access"
	}
	return &PasswordGrant{
		cfg:    cfg,
		client: defaultClient(client, cfg.Timeout),
		now:    time.Now,
	}
}

// Valid reports whether a cached token is still usable
func (p *PasswordGrant) Valid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validLocked()
}

func (p *PasswordGrant) validLocked() bool {
	return p.token != "" && p.now().Before(p.expires)
}

// Token returns the cached token, logging in again when it is missing or expired
func (p *PasswordGrant) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.validLocked() {
		return p.token, nil
	}

	token, err := p.login(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expires = p.now().Add(p.cfg.TTL)
	return token, nil
}

// Invalidate drops the cached token
func (p *PasswordGrant) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expires = time.Time{}
}

func (p *PasswordGrant) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "password",
		"username":   p.cfg.Username,
		"password":   p.cfg.Password,
		"client_id":  p.cfg.ClientID,
		"audience":   p.cfg.Audience,
		"scope":      p.cfg.Scope,
		"connection": p.cfg.Connection,
		"device":     p.cfg.Device,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "login", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("invalid login response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("login response has no access_token")
	}

	return ExtractClaim(payload.AccessToken, p.cfg.Claim)
}

// ExtractClaim reads a string claim from the payload of a JWT without verifying it
func ExtractClaim(jwt, claim string) (string, error) {
	parts := strings.Split(jwt, ".")
	if len(parts) < 2 {
		return "", errors.New("malformed jwt")
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", fmt.Errorf("malformed jwt payload: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return "", fmt.Errorf("malformed jwt claims: %w", err)
	}

	value, ok := claims[claim].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("jwt has no %q claim", claim)
	}
	return value, nil
}

// CommandToken obtains a token from the output of a command, such as
// "gcloud auth print-identity-token", and caches it for TTL
type CommandToken struct {
	Command []string
	TTL     time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

// Token returns the cached token or runs the command
func (c *CommandToken) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}
	if len(c.Command) == 0 {
		return "", ErrNoToken
	}

	out, err := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("token command failed: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", ErrNoToken
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = 50 * time.Minute
	}
	c.token = token
	c.expires = time.Now().Add(ttl)
	return token, nil
}

// Invalidate forces the command to run on the next Token call
func (c *CommandToken) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
