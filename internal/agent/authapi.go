package agent

import (
	"context"
	"fmt"
	"net/http"
)

// User is the backend account record.
type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// TokenResponse is returned by the login, register, google and refresh
// endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
	SessionID    string `json:"session_id"`
}

// GoogleProfile carries the fields the Google OAuth flow hands back.
type GoogleProfile struct {
	GoogleID  string `json:"google_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AuthSession is one device login tracked by the backend.
type AuthSession struct {
	ID           string `json:"id"`
	DeviceInfo   string `json:"device_info,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	LastActivity string `json:"last_activity"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Login authenticates with email and password and stores the returned
// token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.doPublic(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return c.storePair(&out)
}

// Register creates a new account and stores the returned token pair.
func (c *Client) Register(ctx context.Context, email, password, name string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.doPublic(ctx, http.MethodPost, "/auth/register", registerRequest{Email: email, Password: password, Name: name}, &out)
	if err != nil {
		return nil, err
	}
	return c.storePair(&out)
}

// GoogleLogin exchanges a Google OAuth profile for a token pair and
// stores it.
func (c *Client) GoogleLogin(ctx context.Context, profile GoogleProfile) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.doPublic(ctx, http.MethodPost, "/auth/google", profile, &out); err != nil {
		return nil, err
	}
	return c.storePair(&out)
}

func (c *Client) storePair(tr *TokenResponse) (*TokenResponse, error) {
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, fmt.Errorf("server returned an incomplete token pair")
	}
	if err := c.tokens.SetPair(tr.AccessToken, tr.RefreshToken); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return tr, nil
}

// Logout deactivates the current device session on the backend, then clears
// local credentials. Local state is cleared even when the server call fails
// so a broken backend cannot pin a login.
func (c *Client) Logout(ctx context.Context) error {
	serverErr := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil {
		return clearErr
	}
	return serverErr
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthSessions lists the active device sessions for this account.
func (c *Client) AuthSessions(ctx context.Context) ([]AuthSession, error) {
	var out struct {
		Sessions []AuthSession `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeAuthSession logs out one device session by id.
func (c *Client) RevokeAuthSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/auth/sessions/"+sessionID, nil, nil)
}

// RevokeAllAuthSessions logs the account out everywhere, including here.
func (c *Client) RevokeAllAuthSessions(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/auth/sessions/all", nil, nil); err != nil {
		return err
	}
	return c.tokens.Clear()
}
